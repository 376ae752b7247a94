package conductor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/internal/validator"
	"github.com/aretw0/conductor/pkg/adapters/agent"
	"github.com/aretw0/conductor/pkg/adapters/memory"
	"github.com/aretw0/conductor/pkg/adapters/stack"
	"github.com/aretw0/conductor/pkg/dispatch"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/ports"
	"github.com/aretw0/conductor/pkg/registry"
	"github.com/aretw0/conductor/pkg/reporting"
	"github.com/aretw0/conductor/pkg/runner"
	"github.com/aretw0/conductor/pkg/workflow"
)

// Version is the release of the module, reported by the CLI and the ops server.
const Version = "0.4.0"

// BackendFactory builds the orchestration client for one task, typically from the
// task's tenant and token.
type BackendFactory func(task *domain.Task) stack.Backend

// Conductor is the high-level entry point of the library. It owns the function
// registry and the parsed workflow documents, and builds runners over them.
type Conductor struct {
	registry      *engine.Registry
	engines       []*engine.Engine
	documents     []*engine.Document
	logger        *slog.Logger
	templates     ports.TemplateStore
	allowOverride bool
	functions     map[string]engine.Function
	dir, pattern  string

	backends   BackendFactory
	stackOpts  []stack.Option
	agents     bool
	agentOpts  []agent.Option
	userData   *agent.UserData
	runnerOpts []runner.Option
}

// Option defines a functional option for configuring the Conductor.
type Option func(*Conductor)

// WithLogger sets the structured logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conductor) {
		c.logger = logger
	}
}

// WithWorkflowDir loads every file matching pattern in dir, in lexical order.
func WithWorkflowDir(dir, pattern string) Option {
	return func(c *Conductor) {
		c.dir, c.pattern = dir, pattern
	}
}

// WithDocuments adds already parsed documents after the ones found on disk.
func WithDocuments(docs ...*engine.Document) Option {
	return func(c *Conductor) {
		c.documents = append(c.documents, docs...)
	}
}

// WithFunction registers an extra element handler.
func WithFunction(name string, fn engine.Function) Option {
	return func(c *Conductor) {
		c.functions[name] = fn
	}
}

// WithRegistryOverride controls whether a later registration of a tag replaces
// an earlier one. It is allowed by default.
func WithRegistryOverride(allow bool) Option {
	return func(c *Conductor) {
		c.allowOverride = allow
	}
}

// WithTemplates sets the template store of the stack and agent channels.
func WithTemplates(store ports.TemplateStore) Option {
	return func(c *Conductor) {
		c.templates = store
	}
}

// WithStack enables the stack channel.
func WithStack(backends BackendFactory, opts ...stack.Option) Option {
	return func(c *Conductor) {
		c.backends = backends
		c.stackOpts = append(c.stackOpts, opts...)
	}
}

// WithAgents enables the agent channel over the runner's broker.
func WithAgents(opts ...agent.Option) Option {
	return func(c *Conductor) {
		c.agents = true
		c.agentOpts = append(c.agentOpts, opts...)
	}
}

// WithUserData enables the prepare-user-data element.
func WithUserData(u *agent.UserData) Option {
	return func(c *Conductor) {
		c.userData = u
	}
}

// WithRunnerOptions passes options to every runner built by the Conductor.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(c *Conductor) {
		c.runnerOpts = append(c.runnerOpts, opts...)
	}
}

// New registers the handlers and loads the workflow documents.
func New(opts ...Option) (*Conductor, error) {
	c := &Conductor{
		logger:        logging.NewNop(),
		allowOverride: true,
		functions:     map[string]engine.Function{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if (c.backends != nil || c.agents) && c.templates == nil {
		return nil, errors.New("channels need a template store")
	}

	reg, err := engine.NewRegistry(registry.WithOverride(c.allowOverride))
	if err != nil {
		return nil, err
	}
	if err := workflow.Register(reg); err != nil {
		return nil, err
	}
	if err := reporting.Register(reg); err != nil {
		return nil, err
	}
	if err := stack.Register(reg); err != nil {
		return nil, err
	}
	if err := agent.Register(reg, c.userData); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.functions))
	for name := range c.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := reg.Register(name, c.functions[name]); err != nil {
			return nil, err
		}
	}
	c.registry = reg

	if c.dir != "" {
		docs, err := LoadDir(c.dir, c.pattern)
		if err != nil {
			return nil, err
		}
		c.documents = append(docs, c.documents...)
	}
	for _, doc := range c.documents {
		e := engine.New(reg, engine.WithLogger(c.logger))
		e.Use(doc)
		c.engines = append(c.engines, e)
	}
	c.logger.Debug("conductor initialized", "documents", len(c.documents), "functions", len(reg.Names()))
	return c, nil
}

// LoadDir parses every file matching pattern in dir, sorted by name.
func LoadDir(dir, pattern string) ([]*engine.Document, error) {
	if pattern == "" {
		pattern = "*.xml"
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid workflow pattern %q: %w", pattern, err)
	}
	sort.Strings(paths)
	docs := make([]*engine.Document, 0, len(paths))
	for _, path := range paths {
		doc, err := engine.ParseFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Registry returns the function registry.
func (c *Conductor) Registry() *engine.Registry {
	return c.registry
}

// Documents returns the loaded documents in execution order.
func (c *Conductor) Documents() []*engine.Document {
	return append([]*engine.Document(nil), c.documents...)
}

// Validate crawls every document and reports elements without a handler and rule
// matches that do not compile.
func (c *Conductor) Validate() error {
	var errs []error
	for _, doc := range c.documents {
		for _, f := range validator.ValidateDocument(doc, c.registry) {
			errs = append(errs, f)
		}
	}
	return errors.Join(errs...)
}

// Channels builds the channel factory of tasks whose messages travel over broker.
func (c *Conductor) Channels(broker ports.Broker) runner.ChannelFactory {
	return func(task *domain.Task) ([]dispatch.Channel, error) {
		var channels []dispatch.Channel
		if c.backends != nil {
			if task.Name() == "" {
				return nil, fmt.Errorf("%w: task has no name to address its stack", domain.ErrInvalidTask)
			}
			channels = append(channels, stack.NewChannel(task.Name(), c.backends(task), c.templates, c.stackOpts...))
		}
		if c.agents {
			if task.Name() == "" {
				return nil, fmt.Errorf("%w: task has no name to address its agent queues", domain.ErrInvalidTask)
			}
			channels = append(channels, agent.NewChannel(task.Name(), broker, c.templates, c.agentOpts...))
		}
		return channels, nil
	}
}

// Runner builds a runner over the loaded documents publishing to broker.
func (c *Conductor) Runner(broker ports.Broker, opts ...runner.Option) *runner.Runner {
	all := []runner.Option{runner.WithLogger(c.logger), runner.WithChannels(c.Channels(broker))}
	all = append(all, c.runnerOpts...)
	all = append(all, opts...)
	return runner.New(c.engines, broker, all...)
}

// Run processes a single task over an in-process broker and returns its result
// and the reports it emitted. The stack channel still reaches its backend; the
// agent channel, if enabled, has no agents listening on that broker.
func (c *Conductor) Run(ctx context.Context, messageID string, data map[string]any) (domain.Message, []domain.Message, error) {
	broker := memory.NewBroker()
	defer broker.Close()

	r := c.Runner(broker, runner.WithQueues(domain.QueueResults, domain.QueueReports))
	if err := r.Process(ctx, domain.NewTask(messageID, data)); err != nil {
		return domain.Message{}, nil, err
	}

	result, err := broker.Receive(ctx, domain.QueueResults, time.Second)
	if err != nil {
		return domain.Message{}, nil, fmt.Errorf("collect result: %w", err)
	}
	var reports []domain.Message
	for broker.Len(domain.QueueReports) > 0 {
		msg, err := broker.Receive(ctx, domain.QueueReports, time.Second)
		if err != nil {
			return domain.Message{}, nil, fmt.Errorf("collect reports: %w", err)
		}
		reports = append(reports, *msg)
	}
	return *result, reports, nil
}
