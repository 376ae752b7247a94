package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Channel is a named adapter to an external system. Commands are queued by Execute
// and sent in batches by Flush, which returns the completions to deliver.
type Channel interface {
	Name() string
	Execute(cmd *domain.Command) error
	HasPending() bool
	Flush(ctx context.Context) ([]domain.Completion, error)
	Close() error
}

// Dispatcher owns the channels of one task.
type Dispatcher struct {
	channels     map[string]Channel
	order        []string
	flushTimeout time.Duration
	logger       *slog.Logger
	hooks        domain.LifecycleHooks
	messageID    string
	closeOnce    sync.Once
	closeErr     error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithChannel registers a channel under its name.
func WithChannel(ch Channel) Option {
	return func(d *Dispatcher) {
		d.Register(ch)
	}
}

// WithFlushTimeout bounds every channel flush. Zero disables the bound.
func WithFlushTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.flushTimeout = timeout
	}
}

// WithLogger sets the logger used by the dispatcher.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHooks reports queued commands to hooks, tagged with the task's message id.
func WithHooks(hooks domain.LifecycleHooks, messageID string) Option {
	return func(d *Dispatcher) {
		d.hooks = hooks
		d.messageID = messageID
	}
}

// New creates a dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[string]Channel),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds or replaces a channel.
func (d *Dispatcher) Register(ch Channel) {
	if _, exists := d.channels[ch.Name()]; !exists {
		d.order = append(d.order, ch.Name())
	}
	d.channels[ch.Name()] = ch
}

// Channels returns the registered channel names in registration order.
func (d *Dispatcher) Channels() []string {
	return append([]string(nil), d.order...)
}

// Execute queues a command on the named channel.
func (d *Dispatcher) Execute(channel, command string, payload map[string]any, callback domain.CallbackFunc) (*domain.Command, error) {
	ch, ok := d.channels[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownChannel, channel)
	}
	cmd := &domain.Command{
		ID:       uuid.NewString(),
		Channel:  channel,
		Name:     command,
		Payload:  payload,
		Callback: callback,
		Queued:   time.Now(),
	}
	if err := ch.Execute(cmd); err != nil {
		return nil, err
	}
	d.logger.Debug("command queued", "channel", channel, "command", command, "command_id", cmd.ID)
	if d.hooks.OnCommand != nil {
		d.hooks.OnCommand(context.Background(), &domain.CommandEvent{
			EventBase: domain.EventBase{Timestamp: cmd.Queued, Type: domain.EventCommand, MessageID: d.messageID},
			Channel:   channel,
			Command:   command,
		})
	}
	return cmd, nil
}

// HasPendingCommands reports whether any channel holds queued commands.
func (d *Dispatcher) HasPendingCommands() bool {
	for _, name := range d.order {
		if d.channels[name].HasPending() {
			return true
		}
	}
	return false
}

// DrainPending flushes every channel holding queued commands, in parallel. Once all
// flushes have succeeded, the completion callbacks run in channel registration order
// on the calling goroutine and then onAllComplete runs once. If a flush fails, no
// callback runs and the error is returned. The result reports whether any channel
// had something to drain.
func (d *Dispatcher) DrainPending(ctx context.Context, onAllComplete func()) (bool, error) {
	var pending []Channel
	for _, name := range d.order {
		if ch := d.channels[name]; ch.HasPending() {
			pending = append(pending, ch)
		}
	}
	if len(pending) == 0 {
		if onAllComplete != nil {
			onAllComplete()
		}
		return false, nil
	}

	results := make([][]domain.Completion, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range pending {
		g.Go(func() error {
			fctx := gctx
			if d.flushTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(gctx, d.flushTimeout)
				defer cancel()
			}
			completions, err := ch.Flush(fctx)
			if err != nil {
				if !domain.IsExternal(err) {
					err = &domain.ExternalError{Channel: ch.Name(), Err: err}
				}
				return err
			}
			results[i] = completions
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Error("drain failed", "error", err)
		return true, err
	}

	for _, batch := range results {
		for _, c := range batch {
			if c.Command.Callback == nil {
				continue
			}
			if err := c.Command.Callback(c.Result); err != nil {
				return true, fmt.Errorf("command %s callback: %w", c.Command.ID, err)
			}
		}
	}
	if onAllComplete != nil {
		onAllComplete()
	}
	return true, nil
}

// Close releases every channel. It is safe to call more than once.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		var errs []error
		for _, name := range d.order {
			if err := d.channels[name].Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", name, err))
			}
		}
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}

// From returns the dispatcher bound to the pass that ctx belongs to.
func From(ctx *engine.PathContext) (*Dispatcher, error) {
	d, ok := ctx.Get("/" + workflow.KeyDispatcher).(*Dispatcher)
	if !ok || d == nil {
		return nil, fmt.Errorf("%w: no command dispatcher bound", domain.ErrUnknownChannel)
	}
	return d, nil
}
