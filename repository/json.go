package repository

import "encoding/json"

// mustJSON marshals values that are known to be serializable
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
