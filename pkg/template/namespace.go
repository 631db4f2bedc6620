package template

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ReplaceNamespace rewrites a namespace token across a whole JSON value by
// textual substitution on its serialized form. The caller supplies the exact
// token pair, typically "<name>:" and "<value>:". An empty name is a no-op.
func ReplaceNamespace(v any, name, value string) (any, error) {
	if name == "" {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal for namespace rewrite: %w", err)
	}
	replaced := strings.ReplaceAll(string(data), name, value)
	var out any
	if err := json.Unmarshal([]byte(replaced), &out); err != nil {
		return nil, fmt.Errorf("reparse after namespace rewrite: %w", err)
	}
	return out, nil
}
