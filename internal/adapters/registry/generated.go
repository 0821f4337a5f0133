package registry

import "fmt"

// extractGeneratedCode interprets a generator adapter's process output as
// candidate source text plus optional input bindings for the sandboxed run.
// Accepted shapes: a bare source string, or a map with "code" and optional
// "bindings".
func extractGeneratedCode(output interface{}) (string, map[string]interface{}, error) {
	switch v := output.(type) {
	case string:
		if v == "" {
			return "", nil, fmt.Errorf("generator returned empty source")
		}
		return v, nil, nil
	case map[string]interface{}:
		code, ok := v["code"].(string)
		if !ok || code == "" {
			return "", nil, fmt.Errorf("generator output has no %q field", "code")
		}
		bindings, _ := v["bindings"].(map[string]interface{})
		return code, bindings, nil
	default:
		return "", nil, fmt.Errorf("generator returned %T, want string or map", output)
	}
}
