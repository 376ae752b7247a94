package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/ports"
)

// ChannelName is the dispatcher channel served by this package.
const ChannelName = "stack"

// Command names accepted by the channel.
const (
	CommandCreateOrUpdate = "CreateOrUpdate"
	CommandDelete         = "Delete"
)

// Payload keys of a CreateOrUpdate command.
const (
	PayloadTemplate  = "template"
	PayloadMappings  = "mappings"
	PayloadArguments = "arguments"
)

// Terminal stack states.
const (
	StateCreateComplete = "CREATE_COMPLETE"
	StateUpdateComplete = "UPDATE_COMPLETE"
	StateDeleteComplete = "DELETE_COMPLETE"
)

// ErrUnexpectedState is returned when a stack settles in a state other than the expected one.
var ErrUnexpectedState = errors.New("stack reached an unexpected state")

type pendingUpdate struct {
	cmd       *domain.Command
	template  map[string]any
	arguments map[string]any
}

// Channel batches stack template changes for one stack.
type Channel struct {
	stack        string
	backend      Backend
	templates    ports.TemplateStore
	logger       *slog.Logger
	pollInterval time.Duration
	timeout      time.Duration

	mu      sync.Mutex
	updates []pendingUpdate
	deletes dispatch.Queue
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger used by the channel.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithPollInterval sets how often the stack state is polled while it settles.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Channel) {
		c.pollInterval = interval
	}
}

// WithTimeout bounds how long a stack may take to settle. Zero waits indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Channel) {
		c.timeout = timeout
	}
}

// NewChannel creates the channel for the stack named stack.
func NewChannel(stack string, backend Backend, templates ports.TemplateStore, opts ...Option) *Channel {
	c := &Channel{
		stack:        stack,
		backend:      backend,
		templates:    templates,
		logger:       logging.NewNop(),
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements dispatch.Channel.
func (c *Channel) Name() string { return ChannelName }

// Execute queues a command. A CreateOrUpdate template is loaded and transformed
// with the command's mappings right away.
func (c *Channel) Execute(cmd *domain.Command) error {
	c.logger.Debug("stack command received", "command", cmd.Name, "stack", c.stack)

	switch cmd.Name {
	case CommandCreateOrUpdate:
		name := domain.Stringify(cmd.Payload[PayloadTemplate])
		doc, err := c.templates.Document(context.Background(), ChannelName, name)
		if err != nil {
			return err
		}
		mappings, _ := cmd.Payload[PayloadMappings].(map[string]any)
		template, _ := dispatch.Transform(doc, mappings).(map[string]any)
		arguments, _ := cmd.Payload[PayloadArguments].(map[string]any)

		c.mu.Lock()
		c.updates = append(c.updates, pendingUpdate{cmd: cmd, template: template, arguments: arguments})
		c.mu.Unlock()
		return nil
	case CommandDelete:
		c.deletes.Push(cmd)
		return nil
	default:
		return fmt.Errorf("%w: stack command %q", domain.ErrInvalidValue, cmd.Name)
	}
}

// HasPending implements dispatch.Channel.
func (c *Channel) HasPending() bool {
	c.mu.Lock()
	n := len(c.updates)
	c.mu.Unlock()
	return n+c.deletes.Len() > 0
}

// Flush applies every pending update as one merged template, then every pending
// delete as one delete. Each command completes with true.
func (c *Channel) Flush(ctx context.Context) ([]domain.Completion, error) {
	var completions []domain.Completion

	c.mu.Lock()
	updates := c.updates
	c.updates = nil
	c.mu.Unlock()

	if len(updates) > 0 {
		if err := c.applyUpdates(ctx, updates); err != nil {
			return nil, err
		}
		for _, u := range updates {
			completions = append(completions, domain.Completion{Command: u.cmd, Result: true})
		}
	}

	if deletes := c.deletes.Take(); len(deletes) > 0 {
		c.applyDelete(ctx)
		completions = append(completions, dispatch.Complete(deletes, true)...)
	}

	return completions, nil
}

func (c *Channel) applyUpdates(ctx context.Context, updates []pendingUpdate) error {
	template, arguments, exists, err := c.current(ctx)
	if err != nil {
		return err
	}

	for _, u := range updates {
		template = dispatch.MergeMaps(template, u.template, 2)
		arguments = dispatch.MergeMaps(arguments, u.arguments, 1)
	}

	c.logger.Info("applying stack template", "stack", c.stack, "commands", len(updates), "exists", exists)

	if exists {
		if err := c.backend.Update(ctx, c.stack, template, arguments); err != nil {
			return fmt.Errorf("update stack %s: %w", c.stack, err)
		}
		if err := c.wait(ctx, StateUpdateComplete); err != nil {
			return err
		}
		c.logger.Info("stack updated", "stack", c.stack)
		return nil
	}

	if err := c.backend.Create(ctx, c.stack, template, arguments); err != nil {
		return fmt.Errorf("create stack %s: %w", c.stack, err)
	}
	if err := c.wait(ctx, StateCreateComplete); err != nil {
		return err
	}
	c.logger.Info("stack created", "stack", c.stack)
	return nil
}

// applyDelete never fails the drain. A failed delete is logged and its
// callbacks still fire.
func (c *Channel) applyDelete(ctx context.Context) {
	c.logger.Debug("deleting stack", "stack", c.stack)
	err := c.backend.Delete(ctx, c.stack)
	if err == nil {
		err = c.wait(ctx, StateDeleteComplete, "")
	}
	if err != nil && !errors.Is(err, ErrStackNotFound) {
		c.logger.Error("stack delete failed", "stack", c.stack, "error", err)
		return
	}
	c.logger.Info("stack deleted", "stack", c.stack)
}

// current returns the deployed template and parameters, both empty when the stack
// does not exist yet.
func (c *Channel) current(ctx context.Context) (template, parameters map[string]any, exists bool, err error) {
	status, err := c.backend.Get(ctx, c.stack)
	if errors.Is(err, ErrStackNotFound) {
		return map[string]any{}, map[string]any{}, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("get stack %s: %w", c.stack, err)
	}
	template, err = c.backend.Template(ctx, c.stack)
	if err != nil {
		return nil, nil, false, fmt.Errorf("get template of stack %s: %w", c.stack, err)
	}
	if template == nil {
		template = map[string]any{}
	}
	parameters = status.Parameters
	if parameters == nil {
		parameters = map[string]any{}
	}
	return template, parameters, true, nil
}

// wait polls the stack until it leaves an IN_PROGRESS state. A missing stack
// reports the empty state.
func (c *Channel) wait(ctx context.Context, states ...string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		state := ""
		status, err := c.backend.Get(ctx, c.stack)
		switch {
		case errors.Is(err, ErrStackNotFound):
		case err != nil:
			return fmt.Errorf("poll stack %s: %w", c.stack, err)
		default:
			state = status.Status
		}

		if !strings.Contains(state, "IN_PROGRESS") {
			for _, want := range states {
				if state == want {
					return nil
				}
			}
			return fmt.Errorf("%w: %s is %q", ErrUnexpectedState, c.stack, state)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for stack %s: %w", c.stack, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close implements dispatch.Channel.
func (c *Channel) Close() error {
	return nil
}
