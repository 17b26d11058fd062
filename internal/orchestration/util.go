package orchestration

import "encoding/json"

// toJSONString marshals v to a JSON string, falling back to an empty
// string if it isn't serializable (shouldn't happen for goja-exported
// values, which are always plain maps/slices/scalars).
func toJSONString(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
