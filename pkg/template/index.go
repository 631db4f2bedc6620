package template

import (
	"log/slog"
	"strings"
)

// Anchor records one ancestor single-element array of a parameter occurrence.
// Root is the tree the array lives in (the template root for the outermost
// anchor, an array-element template for nested ones) and Path leads from Root
// to the array. An empty Path means Root itself is the array.
type Anchor struct {
	Root any
	Path []string
}

// Occurrence is one appearance of a placeholder in the template. Root is the
// innermost context it was found in: the template root for plain parameters,
// or the enclosing array-element template when Anchors is non-empty. An empty
// Path means the context value itself is the string leaf.
type Occurrence struct {
	Root    any
	Path    []string
	Anchors []Anchor
}

// Index maps each placeholder (delimiters included) to all its occurrences.
type Index map[string][]Occurrence

// ParseParameters walks a template tree and collects every {{...}} placeholder
// together with its structural location. Only arrays of length exactly one act
// as repeatable element templates; any other array is left as literal data.
func ParseParameters(root map[string]any) Index {
	idx := make(Index)
	parseObject(root, root, nil, nil, idx)
	return idx
}

func parseObject(obj map[string]any, root any, path []string, anchors []Anchor, idx Index) {
	for _, key := range sortedKeys(obj) {
		val := obj[key]
		childPath := append(append([]string(nil), path...), key)
		parseValue(val, root, childPath, anchors, idx)
	}
}

func parseValue(val any, root any, path []string, anchors []Anchor, idx Index) {
	switch v := val.(type) {
	case map[string]any:
		parseObject(v, root, path, anchors, idx)
	case []any:
		if len(v) == 1 {
			childAnchors := append(append([]Anchor(nil), anchors...), Anchor{Root: root, Path: path})
			// The single element opens a fresh key-path space rooted at
			// the element template itself.
			parseValue(v[0], v[0], nil, childAnchors, idx)
		} else if arrayHoldsPlaceholders(v) {
			slog.Warn("array with more than one element is literal data, not a template", "path", strings.Join(path, "."), "len", len(v))
		}
	case string:
		parseString(v, root, path, anchors, idx)
	}
}

// parseString scans a leaf left to right for every delimited span and records
// one occurrence per span, all sharing the same location.
func parseString(val string, root any, path []string, anchors []Anchor, idx Index) {
	val = strings.TrimSpace(val)
	start := strings.Index(val, startDelim)
	end := strings.Index(val, endDelim)
	if start < 0 || end < 0 {
		return
	}
	if end+len(endDelim) > start {
		param := val[start : end+len(endDelim)]
		if len(param) > 0 {
			idx[param] = append(idx[param], Occurrence{
				Root:    root,
				Path:    append([]string(nil), path...),
				Anchors: append([]Anchor(nil), anchors...),
			})
		}
	}
	if rest := val[end+len(endDelim):]; len(rest) > 0 {
		parseString(rest, root, path, anchors, idx)
	}
}

// arrayHoldsPlaceholders reports whether any leaf of a literal array still
// looks like a parameter, which usually means a template author got the
// single-element convention wrong.
func arrayHoldsPlaceholders(items []any) bool {
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if HasPlaceholder(v) {
				return true
			}
		case map[string]any:
			for _, vv := range v {
				if arrayHoldsPlaceholders([]any{vv}) {
					return true
				}
			}
		case []any:
			if arrayHoldsPlaceholders(v) {
				return true
			}
		}
	}
	return false
}
