package tools

import (
	"context"
	"fmt"
)

// Tool is anything the model can call, local or remote.
type Tool interface {
	Name() string                                                     // Tool name
	Description() string                                              // Tool description (for LLM)
	Schema() map[string]any                                           // JSON schema of the input object
	Execute(ctx context.Context, args map[string]any) (string, error) // Execute
}

// ParameterDef parameter definition
type ParameterDef struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string" | "number" | "boolean"
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Nullable    bool   `json:"nullable"` // accepts JSON null in addition to Type
}

// BuildParameterSchema builds the JSON schema of an input object from its parameters
func BuildParameterSchema(params []ParameterDef) map[string]any {
	properties := make(map[string]any)
	required := make([]string, 0)

	for _, param := range params {
		var typ any = param.Type
		if param.Nullable {
			typ = []string{param.Type, "null"}
		}
		properties[param.Name] = map[string]any{
			"type":        typ,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// ValidateArgs checks args against the declared parameters.
// Unknown keys are ignored; a required key may hold null only when the parameter is nullable.
func ValidateArgs(params []ParameterDef, args map[string]any) error {
	for _, param := range params {
		value, present := args[param.Name]
		if !present {
			if param.Required {
				return fmt.Errorf("missing required parameter: %s", param.Name)
			}
			continue
		}
		if value == nil {
			if param.Nullable || !param.Required {
				continue
			}
			return fmt.Errorf("parameter %s must not be null", param.Name)
		}
		if !matchesType(param.Type, value) {
			return fmt.Errorf("parameter %s must be of type %s, got %T", param.Name, param.Type, value)
		}
	}
	return nil
}

func matchesType(typ string, value any) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	default:
		return true
	}
}

// stringArg returns args[name] as a string, or def when absent, null or empty
func stringArg(args map[string]any, name, def string) string {
	if s, ok := args[name].(string); ok && s != "" {
		return s
	}
	return def
}
