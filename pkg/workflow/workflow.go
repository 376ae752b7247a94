package workflow

import (
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/engine"
)

// Bindings are the values placed in the root scope of every pass.
type Bindings struct {
	Data   map[string]any
	Config ConfigSource
	// Values holds further root keys, such as KeyDispatcher and KeyReporter.
	Values map[string]any
}

// Workflow runs one loaded document against one task.
type Workflow struct {
	engine   *engine.Engine
	bindings Bindings
}

// New binds a loaded engine to a task.
func New(eng *engine.Engine, bindings Bindings) *Workflow {
	return &Workflow{engine: eng, bindings: bindings}
}

// Source returns the location the document was loaded from.
func (w *Workflow) Source() string {
	if doc := w.engine.Document(); doc != nil {
		return doc.Source
	}
	return ""
}

// Execute runs a single pass in a fresh context and reports whether it changed the data.
func (w *Workflow) Execute() (bool, error) {
	root := engine.NewPathContext()
	root.Set("/"+KeyDataSource, w.bindings.Data)
	if w.bindings.Config != nil {
		root.Set("/"+KeyConfig, w.bindings.Config)
	}
	for k, v := range w.bindings.Values {
		root.Set("/"+k, v)
	}

	result, err := w.engine.Execute(root)
	if err != nil {
		return false, err
	}
	return domain.Truthy(result), nil
}
