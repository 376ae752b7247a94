// Package reporting publishes progress reports about the entities of a task.
package reporting

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/workflow"
)

// TagReport is the element served by this package.
const TagReport = "report"

// Reporter sends the reports of one task. Every report carries the id of the
// message that delivered the task and the task's own id as environment id.
type Reporter struct {
	ctx           context.Context
	broker        ports.Broker
	queue         string
	messageID     string
	environmentID string
	logger        *slog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithQueue overrides the destination queue.
func WithQueue(queue string) Option {
	return func(r *Reporter) {
		r.queue = queue
	}
}

// WithContext sets the context the report element publishes under, normally the
// context of the task.
func WithContext(ctx context.Context) Option {
	return func(r *Reporter) {
		r.ctx = ctx
	}
}

// WithLogger sets the logger used by the reporter.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// New creates a reporter for task.
func New(broker ports.Broker, task *domain.Task, opts ...Option) *Reporter {
	r := &Reporter{
		ctx:           context.Background(),
		broker:        broker,
		queue:         domain.QueueReports,
		messageID:     task.MessageID,
		environmentID: task.ID(),
		logger:        logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report publishes a report about the entity identified by id.
func (r *Reporter) Report(ctx context.Context, entity, id, text string) error {
	report := domain.Report{ID: id, Entity: entity, Text: text, EnvironmentID: r.environmentID}
	r.logger.Debug("report", "entity", entity, "id", id, "text", text)
	if err := r.broker.Publish(ctx, r.queue, domain.Message{ID: r.messageID, Body: report.Body()}); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// Register adds the report handler to reg.
func Register(reg *engine.Registry) error {
	return reg.Register(TagReport, reportFunc)
}

type reportArgs struct {
	Entity string `arg:"entity"`
	ID     string `arg:"id"`
	Text   string `arg:"text"`
}

// reportFunc publishes through the reporter bound to the pass. Without an explicit
// id the report is about the current object; without a text attribute the
// element's content is the text. Reports are fire-and-forget: a failed publish is
// logged and the task goes on.
func reportFunc(call *engine.Call) (any, error) {
	var args reportArgs
	if err := call.Args.Decode(&args); err != nil {
		return nil, fmt.Errorf("%s: %w", TagReport, err)
	}
	r, ok := call.Context.Get("/" + workflow.KeyReporter).(*Reporter)
	if !ok || r == nil {
		return nil, fmt.Errorf("%s: no reporter bound", TagReport)
	}

	if args.ID == "" {
		if obj, ok := workflow.CurrentObject(call.Context).(map[string]any); ok {
			args.ID = domain.Stringify(obj["id"])
		}
	}
	if _, ok := call.Args.Value("text"); !ok {
		content, err := call.Content()
		if err != nil {
			return nil, err
		}
		args.Text = domain.Stringify(content)
	}

	if err := r.Report(r.ctx, args.Entity, args.ID, args.Text); err != nil {
		r.logger.Warn("report not delivered", "entity", args.Entity, "id", args.ID, "error", err)
	}
	return nil, nil
}
