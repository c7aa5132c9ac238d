package tools

import (
	"encoding/json"
	"math"

	"github.com/invopop/jsonschema"
	"github.com/minhyannv/airproject/pkg/apperr"
)

// SchemaFor reflects the argument schema of a tool from its argument struct.
// Fields without omitempty in their json tag are required.
func SchemaFor[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// parametersOf renders a schema as the plain JSON object providers expect.
func parametersOf(schema *jsonschema.Schema) map[string]any {
	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	if schema == nil {
		return params
	}
	if schema.Properties != nil {
		if data, err := json.Marshal(schema.Properties); err == nil {
			props := map[string]any{}
			if err := json.Unmarshal(data, &props); err == nil {
				params["properties"] = props
			}
		}
	}
	if len(schema.Required) > 0 {
		params["required"] = append([]string(nil), schema.Required...)
	}
	return params
}

// validateArguments checks required presence and primitive types.
// Unknown arguments are ignored.
func validateArguments(schema *jsonschema.Schema, args Arguments) error {
	if schema == nil {
		return nil
	}
	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return apperr.New(apperr.InvalidArguments, "missing required argument %q", name)
		}
	}
	if schema.Properties == nil {
		return nil
	}
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		value, ok := args[pair.Key]
		if !ok || pair.Value == nil {
			continue
		}
		if !matchesType(pair.Value.Type, value) {
			return apperr.New(apperr.InvalidArguments, "argument %q must be of type %s", pair.Key, pair.Value.Type)
		}
	}
	return nil
}

func matchesType(typ string, value any) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == math.Trunc(v)
		}
		return false
	case "number":
		switch value.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		return true
	}
}
