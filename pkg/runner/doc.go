/*
Package runner drives workflows against tasks.

A Runner processes one task at a time: it binds every loaded workflow document to
the task's data, repeats passes over them until none changes the data, drains the
commands queued during those passes, and starts over until a drain has nothing left
to send. The task's result is then published with its credential removed.

A Service consumes tasks from a broker and hands each one to a Runner on its own
goroutine.

# Usage

	r := runner.New(engines, broker,
		runner.WithChannels(channels),
		runner.WithMaxPasses(100),
	)
	svc := runner.NewService(broker, r.Process, runner.WithValidator(v))
	if err := svc.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
