package rpc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func stringReader(s string) *strings.Reader {
	return strings.NewReader(s)
}

// CompileSchema compiles an inline JSON Schema document (no $ref resolution
// against a filesystem or network — everything is self-contained) for use
// with Runtime.HandleFunc's schema option.
func CompileSchema(name, doc string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, stringReader(doc)); err != nil {
		return nil, fmt.Errorf("rpc: add schema resource %s: %w", name, err)
	}
	s, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("rpc: compile schema %s: %w", name, err)
	}
	return s, nil
}

// validateParams validates raw JSON params against a schema. A null/empty
// params value is let through — schemas only constrain requests that
// actually carry a params object.
func validateParams(schema *jsonschema.Schema, params json.RawMessage) error {
	if schema == nil || len(params) == 0 || string(params) == "null" {
		return nil
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return fmt.Errorf("rpc: params not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("rpc: params failed schema validation: %w", err)
	}
	return nil
}
