package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/conductor/pkg/domain"
)

// Templates implements ports.TemplateStore using an in-memory map keyed by
// "<channel>/<name>".
type Templates struct {
	mu   sync.RWMutex
	docs map[string]any
	text map[string]string
}

// NewTemplates creates an empty template store.
func NewTemplates() *Templates {
	return &Templates{
		docs: make(map[string]any),
		text: make(map[string]string),
	}
}

// NewTemplatesFromJSON creates a store from raw JSON documents.
func NewTemplatesFromJSON(raw map[string]string) (*Templates, error) {
	t := NewTemplates()
	for key, content := range raw {
		var doc map[string]any
		if err := json.Unmarshal([]byte(content), &doc); err != nil {
			return nil, fmt.Errorf("template %s: %w", key, err)
		}
		t.docs[key] = doc
	}
	return t, nil
}

// SetDocument stores a structured template.
func (t *Templates) SetDocument(channel, name string, doc map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.docs[channel+"/"+name] = domain.Clone(doc)
}

// SetText stores a verbatim template.
func (t *Templates) SetText(channel, name, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.text[channel+"/"+name] = text
}

// Document returns a copy of the structured template.
func (t *Templates) Document(ctx context.Context, channel, name string) (map[string]any, error) {
	t.mu.RLock()
	doc, ok := t.docs[channel+"/"+name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrTemplateNotFound, channel, name)
	}
	out, _ := domain.Clone(doc).(map[string]any)
	return out, nil
}

// Text returns the verbatim template.
func (t *Templates) Text(ctx context.Context, channel, name string) (string, error) {
	t.mu.RLock()
	text, ok := t.text[channel+"/"+name]
	t.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", domain.ErrTemplateNotFound, channel, name)
	}
	return text, nil
}
