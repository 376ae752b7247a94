package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the generated task schema.
const SchemaID = "https://github.com/aretw0/conductor/schemas/task-v1.json"

// Envelope lists the task fields the service itself relies on.
type Envelope struct {
	ID       string `json:"id" jsonschema:"minLength=1,description=Task identifier; reported as environment_id"`
	Name     string `json:"name" jsonschema:"minLength=1,description=Task name; used as the stack name"`
	Token    string `json:"token,omitempty" jsonschema:"description=Caller credential; removed before the result is published"`
	TenantID string `json:"tenant_id,omitempty" jsonschema:"description=Tenant the stack is deployed for"`
}

// Generate produces the JSON Schema (Draft 2020-12) of the task envelope.
func Generate() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.AllowAdditionalProperties = true
	r.ExpandedStruct = true

	s := r.Reflect(&Envelope{})
	s.ID = SchemaID
	s.Title = "Conductor task"
	s.Description = "Message body accepted on the tasks queue"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
