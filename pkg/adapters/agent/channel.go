// Package agent delivers command plans to the agents running on deployed
// instances and waits for their execution results.
package agent

import (
	"context"
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
const ChannelName = "agent"

// CommandSend delivers a plan to one unit.
const CommandSend = "Send"

// Payload keys of a Send command.
const (
	PayloadTemplate = "template"
	PayloadMappings = "mappings"
	PayloadService  = "service"
	PayloadUnit     = "unit"
)

// InputQueue names the queue the agent of a unit listens on.
func InputQueue(stack, service, unit string) string {
	return strings.ToLower(strings.Join([]string{stack, service, unit}, "-"))
}

// ResultQueue names the queue every agent of a stack replies on.
func ResultQueue(stack string) string {
	return strings.ToLower(stack + "-execution-results")
}

// DefaultRequeueDelay is the pause after handing back a reply owned by another task.
const DefaultRequeueDelay = 100 * time.Millisecond

type pendingPlan struct {
	cmd   *domain.Command
	queue string
	plan  map[string]any
}

// Channel sends plans for one stack and collects the replies.
type Channel struct {
	stack         string
	broker        ports.Broker
	templates     ports.TemplateStore
	logger        *slog.Logger
	resultTimeout time.Duration
	requeueDelay  time.Duration

	mu      sync.Mutex
	pending []pendingPlan
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger used by the channel.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithResultTimeout bounds the wait for the next reply to one of the channel's own
// commands. Zero waits indefinitely.
func WithResultTimeout(timeout time.Duration) Option {
	return func(c *Channel) {
		c.resultTimeout = timeout
	}
}

// WithRequeueDelay sets the pause after a reply meant for another task on the
// same stack is put back on the result queue.
func WithRequeueDelay(delay time.Duration) Option {
	return func(c *Channel) {
		c.requeueDelay = delay
	}
}

// NewChannel creates the channel for the stack named stack.
func NewChannel(stack string, broker ports.Broker, templates ports.TemplateStore, opts ...Option) *Channel {
	c := &Channel{
		stack:        stack,
		broker:       broker,
		templates:    templates,
		logger:       logging.NewNop(),
		requeueDelay: DefaultRequeueDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements dispatch.Channel.
func (c *Channel) Name() string { return ChannelName }

// Execute loads the plan template, applies the mappings and queues it for the unit.
func (c *Channel) Execute(cmd *domain.Command) error {
	if cmd.Name != CommandSend {
		return fmt.Errorf("%w: agent command %q", domain.ErrInvalidValue, cmd.Name)
	}

	name := domain.Stringify(cmd.Payload[PayloadTemplate])
	doc, err := c.templates.Document(context.Background(), ChannelName, name)
	if err != nil {
		return err
	}
	mappings, _ := cmd.Payload[PayloadMappings].(map[string]any)
	plan, _ := dispatch.Transform(doc, mappings).(map[string]any)
	queue := InputQueue(c.stack, domain.Stringify(cmd.Payload[PayloadService]), domain.Stringify(cmd.Payload[PayloadUnit]))

	c.mu.Lock()
	c.pending = append(c.pending, pendingPlan{cmd: cmd, queue: queue, plan: plan})
	c.mu.Unlock()
	return nil
}

// HasPending implements dispatch.Channel.
func (c *Channel) HasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// Flush publishes every queued plan, then waits until each has been answered.
// A command completes with the body of its reply.
func (c *Channel) Flush(ctx context.Context) ([]domain.Completion, error) {
	c.mu.Lock()
	plans := c.pending
	c.pending = nil
	c.mu.Unlock()

	waiting := make(map[string]*domain.Command, len(plans))
	for _, p := range plans {
		msg := domain.Message{ID: p.cmd.ID, Body: p.plan}
		if err := c.broker.Publish(ctx, p.queue, msg); err != nil {
			return nil, fmt.Errorf("send plan to %s: %w", p.queue, err)
		}
		c.logger.Debug("plan sent", "queue", p.queue, "command_id", p.cmd.ID)
		waiting[p.cmd.ID] = p.cmd
	}

	results := ResultQueue(c.stack)
	replies := make(map[string]any, len(plans))
	deadline := c.nextDeadline()
	for len(waiting) > 0 {
		var timeout time.Duration
		if !deadline.IsZero() {
			if timeout = time.Until(deadline); timeout <= 0 {
				return nil, fmt.Errorf("wait for %d agent results on %s: %w", len(waiting), results, domain.ErrNoMessage)
			}
		}
		msg, err := c.broker.Receive(ctx, results, timeout)
		if err != nil {
			return nil, fmt.Errorf("wait for %d agent results on %s: %w", len(waiting), results, err)
		}
		if _, ok := waiting[msg.ID]; !ok {
			// Every task of the stack shares the result queue: hand the reply back
			// to its owner. Foreign replies do not extend the deadline.
			if err := c.requeue(ctx, results, msg); err != nil {
				return nil, err
			}
			continue
		}
		delete(waiting, msg.ID)
		replies[msg.ID] = msg.Body
		deadline = c.nextDeadline()
	}

	// Callbacks run in the order the commands were issued, not the order of the replies.
	completions := make([]domain.Completion, len(plans))
	for i, p := range plans {
		completions[i] = domain.Completion{Command: p.cmd, Result: replies[p.cmd.ID]}
	}
	return completions, nil
}

// nextDeadline returns when the wait for the next own reply ends, or the zero
// time when it never does.
func (c *Channel) nextDeadline() time.Time {
	if c.resultTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.resultTimeout)
}

func (c *Channel) requeue(ctx context.Context, queue string, msg *domain.Message) error {
	c.logger.Debug("requeueing agent result of another task", "queue", queue, "id", msg.ID)
	if err := c.broker.Publish(ctx, queue, *msg); err != nil {
		return fmt.Errorf("requeue agent result %s on %s: %w", msg.ID, queue, err)
	}
	if c.requeueDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.requeueDelay):
		return nil
	}
}

// Close implements dispatch.Channel.
func (c *Channel) Close() error {
	return nil
}
