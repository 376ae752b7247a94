package dsl_test

import (
	"bytes"
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/dsl"
	"github.com/aretw0/conductor/pkg/engine"
	"github.com/aretw0/conductor/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namingDocument(t *testing.T) *engine.Document {
	t.Helper()
	doc, err := dsl.New("naming").
		Root(dsl.Workflow(
			dsl.Rule("$.services[?(@.hostname is None)]",
				dsl.Set("hostname", dsl.Text("web-"), dsl.Select("name"), dsl.Text("-01")),
			),
			dsl.Rule("$[?(@.settings is None)]",
				dsl.Set("settings", dsl.Map(
					dsl.Item("replicas", dsl.Int(2)),
					dsl.Item("public", dsl.Bool(true)),
					dsl.Item("zones", dsl.List(dsl.Element("text", dsl.Text("a")), dsl.Null())),
				)),
			),
		)).
		Build()
	require.NoError(t, err)
	return doc
}

func TestBuilder_RunsLikeParsedDocument(t *testing.T) {
	reg, err := engine.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, workflow.Register(reg))
	e := engine.New(reg)
	e.Use(namingDocument(t))

	data := map[string]any{"services": []any{map[string]any{"name": "a"}}}
	changed, err := workflow.New(e, workflow.Bindings{Data: data}).Execute()
	require.NoError(t, err)
	assert.True(t, changed)

	svc := data["services"].([]any)[0].(map[string]any)
	assert.Equal(t, "web-a-01", svc["hostname"])
	settings := data["settings"].(map[string]any)
	assert.True(t, domain.Equal(2, settings["replicas"]))
	assert.Equal(t, true, settings["public"])
	assert.Equal(t, []any{"a", nil}, settings["zones"])
}

func TestMarshal_RoundTrip(t *testing.T) {
	doc := namingDocument(t)

	var buf bytes.Buffer
	require.NoError(t, dsl.Marshal(&buf, doc))
	assert.Contains(t, buf.String(), `<rule match="$.services[?(@.hostname is None)]">`)

	parsed, err := engine.ParseString(buf.String(), "naming")
	require.NoError(t, err)
	assert.Equal(t, doc.Root, parsed.Root)
}

func TestNodeBuilder_TextPlacement(t *testing.T) {
	n := dsl.Element("set", dsl.Text("a"), dsl.Select("x"), dsl.Text("b"), dsl.Text("c")).Build()
	assert.Equal(t, "a", n.Text)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "bc", n.Children[0].Tail)
}

func TestNodeBuilder_Param(t *testing.T) {
	n := dsl.Element("update-stack").
		Attr("template", "base").
		Attr("template", "web").
		Param("arguments", dsl.Map(dsl.Item("size", dsl.Text("small")))).
		Build()

	v, ok := n.Attr("template")
	assert.True(t, ok)
	assert.Equal(t, "web", v)
	assert.Len(t, n.Attrs, 1)
	p := n.Find(engine.TagParameter)
	require.NotNil(t, p)
	name, _ := p.Attr("name")
	assert.Equal(t, "arguments", name)
}

func TestBuilder_Errors(t *testing.T) {
	_, err := dsl.New("empty").Build()
	assert.ErrorIs(t, err, domain.ErrDocumentLoad)

	_, err = dsl.New("bad").Root(dsl.Workflow(dsl.Element("not valid"))).Build()
	assert.ErrorIs(t, err, domain.ErrDocumentLoad)
	assert.ErrorContains(t, err, "not valid")
}
