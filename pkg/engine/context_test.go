package engine_test

import (
	"testing"

	"github.com/aretw0/conductor/pkg/engine"
	"github.com/stretchr/testify/assert"
)

func TestPathContext_PrefixAddressing(t *testing.T) {
	root := engine.NewPathContext()
	a := root.Push()
	b := a.Push()

	a.Set("x", 5)

	assert.Equal(t, 5, b.Get(":x"))
	assert.Nil(t, b.Get("x"), "plain keys never fall back to ancestors")
	assert.Equal(t, "fallback", b.GetDefault("x", "fallback"))
}

func TestPathContext_RootAndOverflow(t *testing.T) {
	root := engine.NewPathContext()
	child := root.Push().Push()

	child.Set("/flag", true)
	assert.Equal(t, true, root.Get("flag"))
	assert.Equal(t, true, child.Get("/flag"))
	assert.Equal(t, true, child.Get(":::::flag"), "extra ':' stop at the root")
	assert.Same(t, root, child.Root())
}

func TestPathContext_CopyOnWriteIsolation(t *testing.T) {
	parent := engine.NewPathContext().Push()
	parent.Set("k", "v")

	child := parent.Push()
	child.Set("k", "w")
	grandchild := child.Push()

	assert.Equal(t, "v", parent.Get("k"))
	assert.Equal(t, "v", child.Get(":k"))
	assert.Equal(t, "w", grandchild.Get(":k"))
	assert.Equal(t, "v", grandchild.Get("::k"))
}

func TestPathContext_MaterializeClonesNearestAncestor(t *testing.T) {
	root := engine.NewPathContext()
	root.Set("a", 1)
	child := root.Push()

	assert.Nil(t, child.Get("a"))

	child.Set("b", 2)
	assert.Equal(t, 1, child.Get("a"), "first write copies the ancestor mapping")

	root.Set("a", 10)
	assert.Equal(t, 1, child.Get("a"))
}

func TestPathContext_Lookup(t *testing.T) {
	root := engine.NewPathContext()
	root.Set("pos", "root")
	mid := root.Push()
	leaf := mid.Push().Push()

	v, ok := leaf.Lookup("pos")
	assert.True(t, ok)
	assert.Equal(t, "root", v)

	mid.Set("pos", "mid")
	v, _ = leaf.Lookup("pos")
	assert.Equal(t, "mid", v)

	_, ok = leaf.Lookup("missing")
	assert.False(t, ok)
}

func TestPathContext_AssignFrom(t *testing.T) {
	root := engine.NewPathContext()
	src := root.Push()
	src.Set("list", []any{"a"})

	shared := engine.NewPathContext()
	shared.AssignFrom(src, false)
	shared.Set("extra", 1)
	assert.Equal(t, 1, src.Get("extra"), "without copy the mapping is shared")
	assert.Same(t, root, shared.Parent())

	copied := engine.NewPathContext()
	copied.AssignFrom(src, true)
	copied.Set("other", 2)
	copied.Get("list").([]any)[0] = "b"
	assert.Nil(t, src.Get("other"))
	assert.Equal(t, []any{"a"}, src.Get("list"))
}
