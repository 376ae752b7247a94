/*
Package conductor drives declarative XML workflows against JSON-like task data
until nothing changes any more.

A workflow document is a tree of elements. Each element name resolves to a Go
function in a registry; the function receives the element's attributes, its
evaluated parameters and a hierarchical context, and decides itself whether and
how to evaluate its children. The rule language (workflow, rule, select, set)
queries the task with JSONPath and rewrites it in place. Elements that talk to
external systems queue commands on channels instead of calling out directly:
the stack channel merges template updates into one orchestration call, the agent
channel sends plans to remote agents over the broker and waits for their replies.

# Driving loop

For each task the runner repeats passes over every loaded document until a pass
changes nothing, then flushes the queued commands. Completion callbacks may
change the task again, so passes and flushes alternate until a flush has nothing
to send. The task, without its token, is then published as the result.

# Usage

	c, err := conductor.New(
		conductor.WithWorkflowDir("data/workflows", "*.xml"),
		conductor.WithTemplates(file.NewTemplates("data/templates")),
	)
	if err != nil {
		log.Fatal(err)
	}
	result, reports, err := c.Run(ctx, "msg-1", map[string]any{"id": "env-1", "name": "demo"})

Long-running consumers combine Conductor.Runner with runner.Service and a broker
from pkg/adapters/redis; the conductor command does exactly that.
*/
package conductor
