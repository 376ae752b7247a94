package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/schema"
	"github.com/aretw0/conductor/pkg/session"
)

// Handler processes one task.
type Handler func(ctx context.Context, task *domain.Task) error

// Middleware wraps a Handler with cross-cutting policy.
type Middleware func(next Handler) Handler

// Chain wraps h with mws. The first middleware is the outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RecoverMiddleware turns a panic raised while processing a task into an error,
// so one malformed document cannot take the service down.
func RecoverMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, task *domain.Task) (err error) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("task panicked",
						"message_id", task.MessageID,
						"panic", p,
						"stack", string(debug.Stack()),
					)
					err = fmt.Errorf("task %s panicked: %v", task.MessageID, p)
				}
			}()
			return next(ctx, task)
		}
	}
}

// ValidationMiddleware rejects tasks whose body does not match the task schema.
func ValidationMiddleware(v *schema.Validator, logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, task *domain.Task) error {
			if err := v.Validate(task.Data); err != nil {
				logger.Warn("rejecting invalid task", "message_id", task.MessageID, "error", err)
				return err
			}
			return next(ctx, task)
		}
	}
}

// GuardMiddleware skips a task whose message id is already being processed.
// A skipped delivery is not an error.
func GuardMiddleware(mgr *session.Manager, logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, task *domain.Task) error {
			err := mgr.WithLock(ctx, task.MessageID, func(ctx context.Context) error {
				return next(ctx, task)
			})
			if errors.Is(err, session.ErrBusy) {
				logger.Info("skipping duplicate delivery", "message_id", task.MessageID)
				return nil
			}
			return err
		}
	}
}
