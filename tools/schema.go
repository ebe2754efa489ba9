package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON schema from a tool's input struct. Fields without
// `omitempty` are required; descriptions come from `jsonschema` struct tags.
func SchemaFor(v any) string {
	r := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// Reflection of a concrete struct cannot produce unmarshalable
		// output; an empty object keeps validation permissive if it somehow
		// does.
		return "{}"
	}
	return string(b)
}

type schemaProperty struct {
	Type  string `json:"type,omitempty"`
	Items *struct {
		Type string `json:"type,omitempty"`
	} `json:"items,omitempty"`
}

type paramSchema struct {
	Type       string                    `json:"type,omitempty"`
	Properties map[string]schemaProperty `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// ValidateParams checks params against schemaJSON: every required field must
// be present, no undeclared fields, and declared string/boolean/array types
// must match. Runs before any tool handler.
func ValidateParams(schemaJSON string, params map[string]any) error {
	schemaJSON = strings.TrimSpace(schemaJSON)
	if schemaJSON == "" || schemaJSON == "{}" {
		if len(params) > 0 {
			return fmt.Errorf("tool takes no parameters")
		}
		return nil
	}
	var schema paramSchema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return fmt.Errorf("tool schema is invalid: %w", err)
	}
	for _, name := range schema.Required {
		if _, ok := params[name]; !ok {
			return fmt.Errorf("missing required param: %s", name)
		}
	}
	for name, value := range params {
		prop, declared := schema.Properties[name]
		if !declared {
			return fmt.Errorf("unknown param: %s", name)
		}
		if err := checkType(name, prop, value); err != nil {
			return err
		}
	}
	return nil
}

func checkType(name string, prop schemaProperty, value any) error {
	switch prop.Type {
	case "", "object":
		return nil
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("param %s must be a string", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("param %s must be a boolean", name)
		}
	case "integer", "number":
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return fmt.Errorf("param %s must be a number", name)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("param %s must be an array", name)
		}
		if prop.Items != nil && prop.Items.Type == "string" {
			for i, item := range items {
				if _, ok := item.(string); !ok {
					return fmt.Errorf("param %s[%d] must be a string", name, i)
				}
			}
		}
	default:
		return nil
	}
	return nil
}
