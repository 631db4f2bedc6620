// Package template implements the CSV-driven manifest template engine:
// placeholder discovery, CSV column binding, and per-row materialization of
// JSON templates into manifest documents.
package template

import (
	"fmt"
	"sort"
	"strings"
)

const (
	startDelim = "{{"
	endDelim   = "}}"
)

// Clone deep-copies a JSON value tree (maps, slices, scalars).
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = Clone(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = Clone(vv)
		}
		return out
	default:
		return t
	}
}

// HasPlaceholder reports whether s still contains a {{...}} parameter span.
// Both delimiters must be present; their relative order is not checked, which
// matches how unfilled leaves are detected during pruning.
func HasPlaceholder(s string) bool {
	return strings.Contains(s, startDelim) && strings.Contains(s, endDelim)
}

// sortedKeys returns the map keys in sorted order so that tree walks are
// deterministic regardless of map iteration order.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// walkTo descends from root through all but the last path key and returns the
// map holding the final key. Every intermediate value must be an object.
func walkTo(root any, path []string) (map[string]any, string, error) {
	if len(path) == 0 {
		return nil, "", fmt.Errorf("empty key path")
	}
	cur := root
	for _, k := range path[:len(path)-1] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, "", fmt.Errorf("key path %v: %q is not an object", path, k)
		}
		cur = m[k]
	}
	m, ok := cur.(map[string]any)
	if !ok {
		return nil, "", fmt.Errorf("key path %v does not end in an object", path)
	}
	return m, path[len(path)-1], nil
}

// getAt reads the value held by a container/key pair produced by walkTo or by
// array-element addressing (slice container with int key).
func getAt(container any, key any) (any, error) {
	switch c := container.(type) {
	case map[string]any:
		return c[key.(string)], nil
	case []any:
		i := key.(int)
		if i < 0 || i >= len(c) {
			return nil, fmt.Errorf("array index %d out of range", i)
		}
		return c[i], nil
	default:
		return nil, fmt.Errorf("cannot index %T", container)
	}
}

// setAt writes through the same addressing as getAt.
func setAt(container any, key any, v any) error {
	switch c := container.(type) {
	case map[string]any:
		c[key.(string)] = v
		return nil
	case []any:
		i := key.(int)
		if i < 0 || i >= len(c) {
			return fmt.Errorf("array index %d out of range", i)
		}
		c[i] = v
		return nil
	default:
		return fmt.Errorf("cannot index %T", container)
	}
}

// isEmptyValue reports whether v is a container whose contents are recursively
// empty. Scalars are never empty; an empty map or slice is.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case map[string]any:
		for _, vv := range t {
			if !isEmptyValue(vv) {
				return false
			}
		}
		return true
	case []any:
		for _, vv := range t {
			if !isEmptyValue(vv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
