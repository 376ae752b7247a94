package schema_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	data, err := schema.Generate()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, schema.SchemaID, doc["$id"])
	assert.ElementsMatch(t, []any{"id", "name"}, doc["required"])
	props := doc["properties"].(map[string]any)
	assert.Contains(t, props, "token")
	assert.Contains(t, props, "tenant_id")
}

func TestValidator(t *testing.T) {
	v, err := schema.NewValidator()
	require.NoError(t, err)

	tests := []struct {
		name  string
		body  map[string]any
		valid bool
	}{
		{"minimal", map[string]any{"id": "t1", "name": "env"}, true},
		{"extra data", map[string]any{"id": "t1", "name": "env", "services": []any{map[string]any{"units": 2}}}, true},
		{"credentials", map[string]any{"id": "t1", "name": "env", "token": "x", "tenant_id": "y"}, true},
		{"missing name", map[string]any{"id": "t1"}, false},
		{"empty id", map[string]any{"id": "", "name": "env"}, false},
		{"numeric name", map[string]any{"id": "t1", "name": 5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.body)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidTask))
			assert.NotEmpty(t, schema.ValidationErrors(err))
		})
	}
}

func TestAggregateError_Message(t *testing.T) {
	err := &schema.AggregateError{Errors: []error{
		&schema.ValidationError{Path: "name", Reason: "missing"},
		&schema.ValidationError{Reason: "bad"},
	}}
	assert.Contains(t, err.Error(), "2 validation errors")
	assert.Contains(t, err.Error(), `field "name": missing`)
	assert.Nil(t, schema.ValidationErrors(errors.New("plain")))
}
