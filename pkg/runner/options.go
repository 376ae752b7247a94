package runner

import (
	"log/slog"
	"time"

	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/workflow"
)

// DefaultMaxPasses bounds the passes of one drain round unless configured otherwise.
const DefaultMaxPasses = 1000

// ChannelFactory builds the channels serving one task.
type ChannelFactory func(task *domain.Task) ([]dispatch.Channel, error)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithChannels configures how the channels of each task are built.
func WithChannels(factory ChannelFactory) Option {
	return func(r *Runner) {
		r.channels = factory
	}
}

// WithConfig exposes cfg to '##' reads in workflow documents.
func WithConfig(cfg workflow.ConfigSource) Option {
	return func(r *Runner) {
		r.config = cfg
	}
}

// WithMaxPasses bounds the passes of one drain round. Zero removes the bound.
func WithMaxPasses(n int) Option {
	return func(r *Runner) {
		r.maxPasses = n
	}
}

// WithFlushTimeout bounds every channel flush. Zero disables the bound.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.flushTimeout = timeout
	}
}

// WithLifecycleHooks configures the observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Runner) {
		r.hooks = hooks
	}
}

// WithQueues overrides the result and report destinations.
func WithQueues(results, reports string) Option {
	return func(r *Runner) {
		r.resultsQueue = results
		r.reportsQueue = reports
	}
}
