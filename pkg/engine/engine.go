package engine

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/registry"
)

// TagParameter names the child elements that are evaluated into handler arguments
// instead of being treated as content.
const TagParameter = "parameter"

// Function handles one document element.
type Function func(call *Call) (any, error)

// Registry is the table of element handlers shared by every engine.
type Registry = registry.Registry[Function]

// Call is everything a Function receives: the evaluating engine, the element, the
// fresh scope created for this evaluation and the collected arguments.
type Call struct {
	Engine  *Engine
	Node    *domain.Node
	Context *PathContext
	Args    Args
}

// Content evaluates the element's own content in its scope.
func (c *Call) Content() (any, error) {
	return c.Engine.EvaluateContent(c.Node, c.Context)
}

// Deferred is a zero-argument closure produced by the "function" element.
type Deferred func() (any, error)

// Engine evaluates a single loaded document.
type Engine struct {
	registry *Registry
	document *Document
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine resolving elements through reg.
func New(reg *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewRegistry creates a registry with the built-in content handlers registered.
func NewRegistry(opts ...registry.Option) (*Registry, error) {
	reg := registry.New[Function](opts...)
	if err := RegisterBuiltins(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// Load parses a document and makes it the one Execute runs.
func (e *Engine) Load(r io.Reader, source string) error {
	doc, err := Parse(r, source)
	if err != nil {
		return err
	}
	e.document = doc
	return nil
}

// Use sets an already parsed document. Documents are immutable, so one parse can be
// shared by engines of different tasks.
func (e *Engine) Use(doc *Document) {
	e.document = doc
}

// Document returns the loaded document, or nil.
func (e *Engine) Document() *Document {
	return e.document
}

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Execute evaluates the root of the loaded document below parent.
func (e *Engine) Execute(parent *PathContext) (any, error) {
	if e.document == nil {
		return nil, &domain.DocumentLoadError{Source: "", Err: errors.New("no document loaded")}
	}
	e.logger.Debug("executing document", "source", e.document.Source, "root", e.document.Root.Tag)
	return e.Evaluate(e.document.Root, parent)
}

// Evaluate resolves the element's handler, creates a fresh scope below parent and
// invokes the handler with the element's attributes and evaluated parameters.
func (e *Engine) Evaluate(node *domain.Node, parent *PathContext) (any, error) {
	if node.Tag == TagParameter {
		return nil, nil
	}

	fn, err := e.registry.Resolve(node.Tag)
	if err != nil {
		return nil, err
	}

	if parent == nil {
		parent = NewPathContext()
	}
	scope := parent.Push()

	args := make(Args, len(node.Attrs))
	for _, a := range node.Attrs {
		args[a.Name] = a.Value
	}
	for _, param := range node.FindAll(TagParameter) {
		name, _ := param.Attr("name")
		value, err := e.EvaluateContent(param, scope)
		if err != nil {
			return nil, err
		}
		args[name] = value
	}

	return fn(&Call{Engine: e, Node: node, Context: scope, Args: args})
}

// EvaluateContent folds the element's mixed content. Text fragments and the results
// of evaluating every non-parameter child are collected in order, then:
//
//   - with no non-string result, the text is joined (and trimmed when at least one
//     child was evaluated);
//   - with exactly one non-string result, that value is returned alone;
//   - otherwise the full ordered sequence of text fragments and values is returned,
//     empty fragments included.
func (e *Engine) EvaluateContent(node *domain.Node, ctx *PathContext) (any, error) {
	parts := []any{node.Text}
	doStrip := false
	values := 0

	for _, child := range node.Children {
		if child.Tag == TagParameter {
			continue
		}
		doStrip = true
		v, err := e.Evaluate(child, ctx)
		if err != nil {
			return nil, err
		}
		if _, isString := v.(string); !isString {
			values++
		}
		parts = append(parts, v, child.Tail)
	}

	switch values {
	case 0:
		var b strings.Builder
		for _, p := range parts {
			b.WriteString(p.(string))
		}
		if doStrip {
			return strings.TrimSpace(b.String()), nil
		}
		return b.String(), nil
	case 1:
		for _, p := range parts {
			if _, isString := p.(string); !isString {
				return p, nil
			}
		}
	}

	return parts, nil
}
