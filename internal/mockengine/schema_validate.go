package mockengine

import "fmt"

// validateAgainstSchema performs a minimal structural check of value
// against a JSON Schema subset (type, properties/required, items). No
// pack dependency ships a JSON Schema validator, and the spec only needs
// enough validation to catch a generator producing the wrong shape
// (spec §4.C's MockOutputInvalid), so this is a small hand-rolled
// recursive checker rather than a full draft-07 implementation.
func validateAgainstSchema(value any, schema map[string]any) error {
	t, _ := schema["type"].(string)
	switch t {
	case "object":
		m, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		if required, ok := schema["required"].([]any); ok {
			for _, r := range required {
				key, _ := r.(string)
				if _, present := m[key]; !present {
					return fmt.Errorf("missing required property %q", key)
				}
			}
		}
		if props, ok := schema["properties"].(map[string]any); ok {
			for key, sub := range props {
				subSchema, ok := sub.(map[string]any)
				if !ok {
					continue
				}
				if v, present := m[key]; present {
					if err := validateAgainstSchema(v, subSchema); err != nil {
						return fmt.Errorf("property %q: %w", key, err)
					}
				}
			}
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		if items, ok := schema["items"].(map[string]any); ok {
			for i, v := range arr {
				if err := validateAgainstSchema(v, items); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "number", "integer":
		switch value.(type) {
		case float64, int, int64:
		default:
			return fmt.Errorf("expected number, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	}
	return nil
}
