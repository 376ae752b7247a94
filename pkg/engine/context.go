package engine

import (
	"fmt"
	"maps"

	"github.com/aretw0/conductor/pkg/domain"
)

// PathContext is one scope of the hierarchical execution context.
//
// A scope owns at most one mapping, materialized on first write by copying the
// mapping of its nearest materialized ancestor. Keys are addressed with prefixes:
// every leading ':' moves one scope up (staying at the root once reached) and a
// leading '/' jumps to the root. A plain key only ever reads the current scope.
//
// A PathContext tree belongs to a single task and is not safe for concurrent use.
type PathContext struct {
	parent *PathContext
	data   map[string]any
}

// NewPathContext creates a root scope.
func NewPathContext() *PathContext {
	return &PathContext{}
}

// Push returns a new, unmaterialized child scope.
func (c *PathContext) Push() *PathContext {
	return &PathContext{parent: c}
}

// Parent returns the enclosing scope, or nil for the root.
func (c *PathContext) Parent() *PathContext {
	return c.parent
}

// Root returns the outermost scope.
func (c *PathContext) Root() *PathContext {
	ctx := c
	for ctx.parent != nil {
		ctx = ctx.parent
	}
	return ctx
}

// resolve consumes the addressing prefixes of path and returns the target scope
// together with the remaining key.
func (c *PathContext) resolve(path string) (*PathContext, string) {
	ctx := c
	i := 0
	for ; i < len(path); i++ {
		switch path[i] {
		case ':':
			if ctx.parent != nil {
				ctx = ctx.parent
			}
		case '/':
			ctx = ctx.Root()
		default:
			return ctx, path[i:]
		}
	}
	return ctx, ""
}

// Get returns the value stored under path, or nil.
func (c *PathContext) Get(path string) any {
	v, _ := c.GetOK(path)
	return v
}

// GetOK returns the value stored under path and whether it was set.
func (c *PathContext) GetOK(path string) (any, bool) {
	ctx, key := c.resolve(path)
	if ctx.data == nil {
		return nil, false
	}
	v, ok := ctx.data[key]
	return v, ok
}

// GetDefault returns the value stored under path, or def when it is not set.
func (c *PathContext) GetDefault(path string, def any) any {
	if v, ok := c.GetOK(path); ok {
		return v
	}
	return def
}

// Set stores value under path, materializing the target scope if needed.
func (c *PathContext) Set(path string, value any) {
	ctx, key := c.resolve(path)
	ctx.materialize()[key] = value
}

// Lookup searches key in this scope and then in every ancestor, returning the value
// from the nearest materialized scope that holds it. Prefixes are not interpreted.
func (c *PathContext) Lookup(key string) (any, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if ctx.data == nil {
			continue
		}
		if v, ok := ctx.data[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// AssignFrom rebinds this scope to other's parent and mapping. With deep set, the
// mapping is deep-copied so later writes through either scope stay invisible to the other.
func (c *PathContext) AssignFrom(other *PathContext, deep bool) {
	c.parent = other.parent
	c.data = other.data
	if deep && c.data != nil {
		cloned := make(map[string]any, len(c.data))
		for k, v := range c.data {
			cloned[k] = domain.Clone(v)
		}
		c.data = cloned
	}
}

func (c *PathContext) materialize() map[string]any {
	if c.data != nil {
		return c.data
	}
	for anc := c.parent; anc != nil; anc = anc.parent {
		if anc.data != nil {
			c.data = maps.Clone(anc.data)
			return c.data
		}
	}
	c.data = make(map[string]any)
	return c.data
}

func (c *PathContext) String() string {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if ctx.data != nil {
			return fmt.Sprint(ctx.data)
		}
	}
	return fmt.Sprint(map[string]any{})
}
