package engine

import (
	"fmt"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Args holds a handler's arguments: element attributes (always strings) overlaid
// with evaluated parameter children (any value).
type Args map[string]any

// Value returns the raw argument.
func (a Args) Value(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

// String returns the argument rendered as text, or def when absent.
func (a Args) String(name, def string) string {
	v, ok := a[name]
	if !ok {
		return def
	}
	return domain.Stringify(v)
}

// Int returns the argument as an integer, or def when absent.
func (a Args) Int(name string, def int) (int, error) {
	v, ok := a[name]
	if !ok {
		return def, nil
	}
	n, err := domain.ToInt(v)
	if err != nil {
		return 0, fmt.Errorf("argument %q: %w", name, err)
	}
	return n, nil
}

// Decode copies the arguments into a struct using `arg` field tags. Attribute
// strings are converted to the field types.
func (a Args) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "arg",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(map[string]any(a)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidValue, err)
	}
	return nil
}
