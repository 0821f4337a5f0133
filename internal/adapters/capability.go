package adapters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Capability is the static declaration of one thing an adapter can do. When
// InputSchema is set, execute validates the request input against it before
// dispatching to the adapter.
type Capability struct {
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	InputSchema         json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema        json.RawMessage `json:"output_schema,omitempty"`
	RequiredPermissions []string        `json:"required_permissions,omitempty"`

	// GeneratesCode marks generate-and-run-code capabilities; adapters
	// declaring one always execute through the sandbox.
	GeneratesCode bool `json:"generates_code,omitempty"`
}

// Validate checks the descriptor for structural problems
func (c *Capability) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("capability name is required")
	}
	if len(c.InputSchema) > 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(c.InputSchema)); err != nil {
			return fmt.Errorf("invalid input schema: %w", err)
		}
	}
	if len(c.OutputSchema) > 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(c.OutputSchema)); err != nil {
			return fmt.Errorf("invalid output schema: %w", err)
		}
	}
	return nil
}

// ValidateInput checks an execution input against the capability's input
// schema. A capability without a schema accepts any input.
func (c *Capability) ValidateInput(input interface{}) error {
	if len(c.InputSchema) == 0 {
		return nil
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(c.InputSchema),
		gojsonschema.NewGoLoader(input),
	)
	if err != nil {
		return fmt.Errorf("validating input: %w", err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return fmt.Errorf("input does not match capability %q schema: %s", c.Name, strings.Join(issues, "; "))
	}
	return nil
}
