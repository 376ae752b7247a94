package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// Service consumes tasks from a broker, one goroutine per task.
type Service struct {
	broker         ports.Broker
	handler        Handler
	queue          string
	receiveTimeout time.Duration
	retryDelay     time.Duration
	logger         *slog.Logger
	middleware     []Middleware
	wg             sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithTaskQueue overrides the queue tasks are consumed from.
func WithTaskQueue(queue string) ServiceOption {
	return func(s *Service) {
		s.queue = queue
	}
}

// WithServiceLogger configures the structured logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMiddleware wraps the task handler. The first middleware is the outermost.
func WithMiddleware(mws ...Middleware) ServiceOption {
	return func(s *Service) {
		s.middleware = append(s.middleware, mws...)
	}
}

// WithReceiveTimeout sets how long a single receive blocks before the loop
// checks for shutdown again.
func WithReceiveTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.receiveTimeout = timeout
	}
}

// NewService creates a consumer handing each task to handler.
func NewService(broker ports.Broker, handler Handler, opts ...ServiceOption) *Service {
	s := &Service{
		broker:         broker,
		handler:        handler,
		queue:          domain.QueueTasks,
		receiveTimeout: 5 * time.Second,
		retryDelay:     time.Second,
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes tasks until ctx is cancelled, then waits for the tasks in flight.
// Tasks in flight are not cancelled with ctx; they run to completion.
func (s *Service) Run(ctx context.Context) error {
	handler := Chain(s.handler, append([]Middleware{RecoverMiddleware(s.logger)}, s.middleware...)...)
	taskCtx := context.WithoutCancel(ctx)

	s.logger.Info("service started", "queue", s.queue)
	defer s.logger.Info("service stopped")
	defer s.wg.Wait()

	for {
		msg, err := s.broker.Receive(ctx, s.queue, s.receiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, domain.ErrNoMessage) {
				s.logger.Error("receive failed", "queue", s.queue, "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(s.retryDelay):
				}
			}
			continue
		}

		task := domain.NewTask(msg.ID, msg.Body)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := handler(taskCtx, task); err != nil {
				s.logger.Debug("task failed", "message_id", task.MessageID, "error", err)
			}
		}()
	}
}
