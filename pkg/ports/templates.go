package ports

import "context"

// TemplateStore resolves payload templates. Templates are addressed by the channel
// that uses them and a name, following the <store>/<channel>/<name>.<ext> layout.
type TemplateStore interface {
	// Document returns a structured (JSON or YAML) template.
	Document(ctx context.Context, channel, name string) (map[string]any, error)

	// Text returns a template verbatim.
	Text(ctx context.Context, channel, name string) (string, error)
}
