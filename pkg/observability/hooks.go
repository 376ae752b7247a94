package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/conductor/pkg/domain"
)

// LoggingHooks returns lifecycle hooks writing structured records to logger.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTaskStart: func(ctx context.Context, e *domain.TaskEvent) {
			logger.Info("task started", "task_id", e.TaskID, "message_id", e.MessageID)
		},
		OnTaskFinish: func(ctx context.Context, e *domain.TaskEvent) {
			attrs := []any{"task_id", e.TaskID, "message_id", e.MessageID, "outcome", e.Outcome, "duration", e.Duration}
			if e.Err != nil {
				logger.Error("task finished", append(attrs, "error", e.Err)...)
				return
			}
			logger.Info("task finished", attrs...)
		},
		OnPass: func(ctx context.Context, e *domain.PassEvent) {
			logger.Debug("pass", "message_id", e.MessageID, "pass", e.Pass, "changed", e.Changed)
		},
		OnDrain: func(ctx context.Context, e *domain.DrainEvent) {
			logger.Debug("drain", "message_id", e.MessageID, "drained", e.Drained)
		},
		OnCommand: func(ctx context.Context, e *domain.CommandEvent) {
			logger.Debug("command", "message_id", e.MessageID, "channel", e.Channel, "command", e.Command)
		},
	}
}

// Merge returns hooks invoking every non-nil member of each input, in order.
func Merge(all ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range all {
		out.OnTaskStart = chain(out.OnTaskStart, h.OnTaskStart)
		out.OnTaskFinish = chain(out.OnTaskFinish, h.OnTaskFinish)
		out.OnPass = chain(out.OnPass, h.OnPass)
		out.OnDrain = chain(out.OnDrain, h.OnDrain)
		out.OnCommand = chain(out.OnCommand, h.OnCommand)
	}
	return out
}

func chain[E any](first, next func(context.Context, *E)) func(context.Context, *E) {
	if first == nil {
		return next
	}
	if next == nil {
		return first
	}
	return func(ctx context.Context, e *E) {
		first(ctx, e)
		next(ctx, e)
	}
}
