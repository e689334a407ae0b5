package registry

import (
	"context"
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/corebound/agentrt/validation"
)

// SchemaValidatingTool wraps a Tool with an optional JSON Schema that its
// input must satisfy (when the input parses as JSON) before Call runs.
// Tools whose input is plain text rather than JSON are unaffected — the
// schema is opt-in per tool, grounded on goa-ai's use of
// santhosh-tekuri/jsonschema/v6 for payload validation.
type SchemaValidatingTool struct {
	Tool
	schema *jsonschema.Schema
}

// WithInputSchema compiles schemaJSON (a JSON Schema document) and returns a
// tool that validates every call's input against it before delegating.
func WithInputSchema(tool Tool, schemaJSON []byte) (*SchemaValidatingTool, error) {
	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, &ExecutionFailedError{Tool: tool.Name(), Message: "invalid input schema: " + err.Error()}
	}

	resourceName := tool.Name() + "-input-schema.json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceName, schemaDoc); err != nil {
		return nil, &ExecutionFailedError{Tool: tool.Name(), Message: "invalid input schema: " + err.Error()}
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, &ExecutionFailedError{Tool: tool.Name(), Message: "invalid input schema: " + err.Error()}
	}
	return &SchemaValidatingTool{Tool: tool, schema: schema}, nil
}

func (t *SchemaValidatingTool) Call(ctx context.Context, input validation.ValidatedInput) (ExecutionResult, error) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(input.String()), &parsed); err == nil {
		if err := t.schema.Validate(parsed); err != nil {
			return ExecutionResult{}, &InvalidInputError{Tool: t.Name(), Input: input, Reason: err.Error()}
		}
	}
	return t.Tool.Call(ctx, input)
}
