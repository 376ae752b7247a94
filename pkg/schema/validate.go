package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks message bodies against the task schema.
// Safe for concurrent use.
type Validator struct {
	schema *sjsonschema.Schema
}

// NewValidator compiles the generated task schema.
func NewValidator() (*Validator, error) {
	data, err := Generate()
	if err != nil {
		return nil, err
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(SchemaID, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	sch, err := c.Compile(SchemaID)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: sch}, nil
}

// Validate returns an *AggregateError listing every violation, or nil.
func (v *Validator) Validate(body map[string]any) error {
	// Normalize through JSON so Go numeric types validate like decoded ones.
	data, err := json.Marshal(body)
	if err != nil {
		return &AggregateError{Errors: []error{&ValidationError{Reason: err.Error()}}}
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return &AggregateError{Errors: []error{&ValidationError{Reason: err.Error()}}}
	}

	err = v.schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *sjsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &AggregateError{Errors: []error{&ValidationError{Reason: err.Error()}}}
	}

	var errs []error
	for _, cause := range flatten(ve) {
		errs = append(errs, &ValidationError{
			Path:   strings.Join(cause.InstanceLocation, "/"),
			Reason: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return &AggregateError{Errors: errs}
}

// flatten recursively collects all leaf validation errors.
func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}
