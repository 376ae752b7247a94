package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/conductor/pkg/adapters/file"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestTemplates_Document(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stack", "Linux.template"), `{"Resources": {"$instanceName": {"Type": "Instance", "Count": 1}}}`)
	writeFile(t, filepath.Join(dir, "agent", "Deploy.yaml"), "Scripts:\n  - $script\n")

	store := file.NewTemplates(dir)
	ctx := context.Background()

	doc, err := store.Document(ctx, "stack", "Linux")
	require.NoError(t, err)
	resources := doc["Resources"].(map[string]any)
	instance := resources["$instanceName"].(map[string]any)
	assert.Equal(t, "Instance", instance["Type"])
	assert.True(t, domain.Equal(1.0, instance["Count"]))

	doc, err = store.Document(ctx, "agent", "Deploy")
	require.NoError(t, err)
	assert.Equal(t, []any{"$script"}, doc["Scripts"])
}

func TestTemplates_Text(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "userdata", "init"), "hostname %INTERNAL_HOSTNAME%\n")

	store := file.NewTemplates(dir)
	text, err := store.Text(context.Background(), "userdata", "init")
	require.NoError(t, err)
	assert.Equal(t, "hostname %INTERNAL_HOSTNAME%\n", text)
}

func TestTemplates_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stack", "Broken.json"), "{not: [valid")

	store := file.NewTemplates(dir)
	ctx := context.Background()

	_, err := store.Document(ctx, "stack", "Missing")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)

	_, err = store.Text(ctx, "..", "secrets")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)

	_, err = store.Document(ctx, "stack", "../stack/Broken")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)

	_, err = store.Document(ctx, "stack", "Broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrTemplateNotFound)
}
