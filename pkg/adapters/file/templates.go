// Package file provides a template store backed by a directory tree.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/conductor/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Extensions tried, in order, when a template name has none.
var Extensions = []string{".template", ".json", ".yaml", ".yml"}

// Templates implements ports.TemplateStore over files laid out as
// <dir>/<channel>/<name>.<ext>.
type Templates struct {
	BasePath string
}

// NewTemplates creates a store rooted at basePath.
// If basePath is empty, it defaults to "data/templates".
func NewTemplates(basePath string) *Templates {
	if basePath == "" {
		basePath = filepath.Join("data", "templates")
	}
	return &Templates{BasePath: basePath}
}

func (t *Templates) read(channel, name string) ([]byte, error) {
	if !validSegment(channel) || !validSegment(name) {
		return nil, fmt.Errorf("%w: invalid template reference %q/%q", domain.ErrTemplateNotFound, channel, name)
	}

	candidates := []string{name}
	if filepath.Ext(name) == "" {
		candidates = nil
		for _, ext := range Extensions {
			candidates = append(candidates, name+ext)
		}
		candidates = append(candidates, name)
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(filepath.Join(t.BasePath, channel, candidate))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read template %s/%s: %w", channel, candidate, err)
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", domain.ErrTemplateNotFound, channel, name)
}

// Document parses the template as YAML, which also accepts JSON documents.
func (t *Templates) Document(ctx context.Context, channel, name string) (map[string]any, error) {
	data, err := t.read(channel, name)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template %s/%s: %w", channel, name, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// Text returns the template verbatim.
func (t *Templates) Text(ctx context.Context, channel, name string) (string, error) {
	data, err := t.read(channel, name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// validSegment rejects references that would escape the store directory.
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
