package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/reporting"
	"github.com/aretw0/conductor/pkg/workflow"
)

// Runner processes tasks against a fixed set of loaded workflow documents.
// Engines are shared by every task; all per-task state is created by Process.
type Runner struct {
	engines      []*engine.Engine
	broker       ports.Broker
	channels     ChannelFactory
	config       workflow.ConfigSource
	maxPasses    int
	flushTimeout time.Duration
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	resultsQueue string
	reportsQueue string
}

// New creates a Runner. Workflows run in the order of engines; results and
// reports are published to broker.
func New(engines []*engine.Engine, broker ports.Broker, opts ...Option) *Runner {
	r := &Runner{
		engines:      engines,
		broker:       broker,
		maxPasses:    DefaultMaxPasses,
		logger:       logging.NewNop(),
		resultsQueue: domain.QueueResults,
		reportsQueue: domain.QueueReports,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process runs the driving loop for task and publishes its result. If the loop
// aborts, the error is returned and no result is published.
func (r *Runner) Process(ctx context.Context, task *domain.Task) (err error) {
	start := time.Now()
	logger := r.logger.With("task_id", task.ID(), "message_id", task.MessageID)
	base := domain.EventBase{MessageID: task.MessageID}

	if r.hooks.OnTaskStart != nil {
		ev := base
		ev.Timestamp, ev.Type = start, domain.EventTaskStart
		r.hooks.OnTaskStart(ctx, &domain.TaskEvent{EventBase: ev, TaskID: task.ID()})
	}
	defer func() {
		if r.hooks.OnTaskFinish == nil {
			return
		}
		ev := base
		ev.Timestamp, ev.Type = time.Now(), domain.EventTaskFinish
		r.hooks.OnTaskFinish(ctx, &domain.TaskEvent{
			EventBase: ev,
			TaskID:    task.ID(),
			Outcome:   outcome(err),
			Duration:  time.Since(start),
			Err:       err,
		})
	}()

	logger.Info("processing task")
	if err := r.drive(ctx, task, logger); err != nil {
		logger.Error("task aborted", "error", err, "external", domain.IsExternal(err))
		return err
	}

	task.Redact()
	if err := r.broker.Publish(ctx, r.resultsQueue, task.Result()); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	logger.Info("task finished", "duration", time.Since(start))
	return nil
}

func (r *Runner) drive(ctx context.Context, task *domain.Task, logger *slog.Logger) error {
	var channels []dispatch.Channel
	if r.channels != nil {
		var err error
		if channels, err = r.channels(task); err != nil {
			return fmt.Errorf("build channels: %w", err)
		}
	}
	opts := []dispatch.Option{
		dispatch.WithFlushTimeout(r.flushTimeout),
		dispatch.WithLogger(logger),
		dispatch.WithHooks(r.hooks, task.MessageID),
	}
	for _, ch := range channels {
		opts = append(opts, dispatch.WithChannel(ch))
	}
	dispatcher := dispatch.New(opts...)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logger.Warn("failed to close channels", "error", err)
		}
	}()

	reporter := reporting.New(r.broker, task,
		reporting.WithContext(ctx),
		reporting.WithQueue(r.reportsQueue),
		reporting.WithLogger(logger),
	)
	bindings := workflow.Bindings{
		Data:   task.Data,
		Config: r.config,
		Values: map[string]any{
			workflow.KeyDispatcher: dispatcher,
			workflow.KeyReporter:   reporter,
		},
	}
	workflows := make([]*workflow.Workflow, len(r.engines))
	for i, eng := range r.engines {
		workflows[i] = workflow.New(eng, bindings)
	}

	for round := 1; ; round++ {
		if err := r.settle(ctx, task, workflows, logger); err != nil {
			return err
		}

		drained, err := dispatcher.DrainPending(ctx, nil)
		if r.hooks.OnDrain != nil {
			r.hooks.OnDrain(ctx, &domain.DrainEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventDrain, MessageID: task.MessageID},
				Drained:   drained,
			})
		}
		if err != nil {
			return err
		}
		if !drained {
			logger.Debug("fixed point reached", "rounds", round)
			return nil
		}
	}
}

// settle repeats passes until no workflow changes the data.
func (r *Runner) settle(ctx context.Context, task *domain.Task, workflows []*workflow.Workflow, logger *slog.Logger) error {
	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.maxPasses > 0 && pass > r.maxPasses {
			return fmt.Errorf("%w after %d passes", domain.ErrNoFixedPoint, r.maxPasses)
		}

		changed := false
		for _, wf := range workflows {
			c, err := wf.Execute()
			if err != nil {
				return fmt.Errorf("%s: %w", wf.Source(), err)
			}
			changed = changed || c
		}

		if r.hooks.OnPass != nil {
			r.hooks.OnPass(ctx, &domain.PassEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventPass, MessageID: task.MessageID},
				Pass:      pass,
				Changed:   changed,
			})
		}
		logger.Debug("pass finished", "pass", pass, "changed", changed)
		if !changed {
			return nil
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return domain.OutcomeSucceeded
	case errors.Is(err, domain.ErrInvalidTask):
		return domain.OutcomeRejected
	case domain.IsExternal(err):
		return domain.OutcomeExternal
	default:
		return domain.OutcomeFailed
	}
}
