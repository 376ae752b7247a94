package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// Registry maps element names to handler functions.
// It is populated at startup and read concurrently by every task afterwards.
type Registry[F any] struct {
	mu            sync.RWMutex
	funcs         map[string]F
	allowOverride bool
}

// Option configures a Registry.
type Option func(*registryOptions)

type registryOptions struct {
	allowOverride bool
}

// WithOverride controls what happens when a name is registered twice.
// When allowed (the default) the last registration wins; otherwise Register
// returns domain.ErrDuplicateFunction.
func WithOverride(allow bool) Option {
	return func(o *registryOptions) {
		o.allowOverride = allow
	}
}

// New creates a new empty registry.
func New[F any](opts ...Option) *Registry[F] {
	o := registryOptions{allowOverride: true}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[F]{
		funcs:         make(map[string]F),
		allowOverride: o.allowOverride,
	}
}

// Register adds a function under name.
func (r *Registry[F]) Register(name string, fn F) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists && !r.allowOverride {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateFunction, name)
	}
	r.funcs[name] = fn
	return nil
}

// Resolve looks up a function by name.
// Returns domain.UnknownFunctionError if nothing is registered under that name.
func (r *Registry[F]) Resolve(name string) (F, error) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()

	if !ok {
		var zero F
		return zero, &domain.UnknownFunctionError{Name: name}
	}
	return fn, nil
}

// Has reports whether name is registered.
func (r *Registry[F]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.funcs[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
