package template

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

var tagPattern = regexp.MustCompile(`\$\$_(oneOf|anyOf)_[1-9][0-9]*\$\$`)

// Options carries the optional per-run metadata applied to every manifest.
type Options struct {
	ACLViewer string
	ACLOwner  string
	LegalTag  string
}

// Materialize produces one manifest from a single CSV data row. The template
// is never mutated: each call works on a deep copy, re-derives the parameter
// index on that copy, and verifies it matches the supplied index before
// substituting. Any error aborts only this row.
func Materialize(tpl map[string]any, required map[string]any, idx Index, bindings Bindings, row []string, opts Options) (map[string]any, error) {
	doc := Clone(tpl).(map[string]any)

	fresh := ParseParameters(doc)
	if !indexesEqual(fresh, idx) {
		return nil, ErrStructuralDrift
	}

	// Clear every outermost template array so real elements can be appended.
	for _, param := range sortedParams(fresh) {
		for _, occ := range fresh[param] {
			if len(occ.Anchors) == 0 {
				continue
			}
			top := occ.Anchors[0]
			parent, key, err := walkTo(top.Root, top.Path)
			if err != nil {
				return nil, fmt.Errorf("reset array for %s: %w", param, err)
			}
			parent[key] = []any{}
		}
	}

	for _, param := range sortedParams(fresh) {
		for _, occ := range fresh[param] {
			binding, bound := bindings[param]
			if len(occ.Anchors) == 0 {
				col := -1
				if bound && !binding.Array {
					col = binding.Column
				}
				if err := substituteAt(occ.Root, occ.Path, param, row, col); err != nil {
					return nil, fmt.Errorf("parameter %s: %w", param, err)
				}
				continue
			}
			if !bound {
				continue
			}
			for _, cell := range binding.Cells {
				container, key, err := growArrays(occ, cell.Coords)
				if err != nil {
					return nil, fmt.Errorf("parameter %s: %w", param, err)
				}
				if err := substitute(container, key, param, row, cell.Column); err != nil {
					return nil, fmt.Errorf("parameter %s: %w", param, err)
				}
			}
		}
	}

	pruneObject(doc)
	if err := stripTags(doc); err != nil {
		return nil, err
	}
	backfillObject(doc, required)

	if opts.ACLViewer != "" || opts.ACLOwner != "" {
		setACL(doc, opts.ACLViewer, opts.ACLOwner)
	}
	if opts.LegalTag != "" {
		if err := setLegalTag(doc, opts.LegalTag); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// growArrays follows an occurrence's anchor chain for one coordinate vector,
// appending deep copies of each level's element template until the target
// coordinate exists, and returns the container/key addressing the string leaf
// to substitute into. When an element is itself a scalar the enclosing array
// is the substitution target at that index.
func growArrays(occ Occurrence, coords []int) (any, any, error) {
	top := occ.Anchors[0]
	arrParent, arrKey, err := walkTo(top.Root, top.Path)
	if err != nil {
		return nil, nil, err
	}
	var container any = arrParent
	var key any = arrKey

	for level, index := range coords {
		elemTpl, elemPath := levelTemplate(occ, level)

		cur, err := getAt(container, key)
		if err != nil {
			return nil, nil, err
		}
		arr, ok := cur.([]any)
		if !ok {
			return nil, nil, fmt.Errorf("anchor level %d is not an array", level)
		}
		for len(arr) <= index {
			arr = append(arr, Clone(elemTpl))
		}
		if err := setAt(container, key, arr); err != nil {
			return nil, nil, err
		}

		elem := arr[index]
		if _, isLeaf := elem.(string); isLeaf || len(elemPath) == 0 {
			container, key = arr, index
			continue
		}
		parent, last, err := walkTo(elem, elemPath)
		if err != nil {
			return nil, nil, err
		}
		container, key = parent, last
	}
	return container, key, nil
}

// levelTemplate returns the element template of the array at the given anchor
// level together with the key path from that element to the next level (or to
// the string leaf at the last level).
func levelTemplate(occ Occurrence, level int) (any, []string) {
	if level+1 < len(occ.Anchors) {
		next := occ.Anchors[level+1]
		return next.Root, next.Path
	}
	return occ.Root, occ.Path
}

// substituteAt resolves a key path within a root object and substitutes there.
func substituteAt(root any, path []string, param string, row []string, col int) error {
	parent, key, err := walkTo(root, path)
	if err != nil {
		return err
	}
	return substitute(parent, key, param, row, col)
}

// substitute replaces the placeholder in the addressed string leaf with the
// row's cell value, coercing the whole leaf when it is a typed placeholder.
// Empty or unbound cells leave the placeholder in place for pruning.
func substitute(container any, key any, param string, row []string, col int) error {
	data := ""
	if col >= 0 && col < len(row) {
		data = strings.TrimSpace(row[col])
	}
	if data == "" {
		return nil
	}

	val, err := getAt(container, key)
	if err != nil {
		return err
	}
	leaf, ok := val.(string)
	if !ok {
		return fmt.Errorf("substitution target is %T, not a string", val)
	}

	if fn := coerceTag(leaf, param); fn != "" {
		coerced, err := coerceValue(fn, data)
		if err != nil {
			return err
		}
		return setAt(container, key, coerced)
	}
	return setAt(container, key, strings.ReplaceAll(leaf, param, data))
}

// indexesEqual compares two parameter indexes structurally: same parameters,
// same occurrence locations and anchor chains, value-equal roots.
func indexesEqual(a, b Index) bool {
	return reflect.DeepEqual(a, b)
}

// pruneObject removes, bottom-up, every string leaf still holding a
// placeholder and every container left recursively empty afterwards.
func pruneObject(obj map[string]any) {
	var remove []string
	for _, key := range sortedKeys(obj) {
		switch v := obj[key].(type) {
		case map[string]any:
			pruneObject(v)
			if len(v) == 0 {
				remove = append(remove, key)
			}
		case []any:
			pruned := pruneList(v)
			obj[key] = pruned
			if len(pruned) == 0 {
				remove = append(remove, key)
			}
		case string:
			if HasPlaceholder(v) {
				remove = append(remove, key)
			}
		}
	}
	for _, key := range remove {
		delete(obj, key)
	}
}

func pruneList(list []any) []any {
	out := list[:0]
	for _, item := range list {
		switch v := item.(type) {
		case map[string]any:
			pruneObject(v)
			out = append(out, v)
		case []any:
			out = append(out, pruneList(v))
		case string:
			if !HasPlaceholder(v) {
				out = append(out, v)
			}
		default:
			out = append(out, v)
		}
	}
	// Whole stub elements whose remaining fields are all empty collapse away.
	kept := out[:0]
	for _, item := range out {
		if !isEmptyValue(item) {
			kept = append(kept, item)
		}
	}
	return kept
}

// stripTags removes oneOf/anyOf discriminator suffixes from object keys.
// Two keys stripping to the same name in one object is a row fault.
func stripTags(v any) error {
	switch t := v.(type) {
	case map[string]any:
		for _, key := range sortedKeys(t) {
			if err := stripTags(t[key]); err != nil {
				return err
			}
		}
		renames := make(map[string]string)
		for _, key := range sortedKeys(t) {
			if clean := tagPattern.ReplaceAllString(key, ""); clean != key {
				renames[key] = clean
			}
		}
		for _, old := range sortedRenameKeys(renames) {
			clean := renames[old]
			if _, exists := t[clean]; exists {
				return fmt.Errorf("%w: %s", ErrKeyCollision, old)
			}
			t[clean] = t[old]
			delete(t, old)
		}
	case []any:
		for _, item := range t {
			if err := stripTags(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedRenameKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// backfillObject injects required-template fields absent from the manifest.
// Existing values always win: matching containers are recursed into, never
// overwritten, and keys marked optional with a $ prefix are only recursed.
func backfillObject(dst, src map[string]any) {
	for _, key := range sortedKeys(src) {
		vsrc := src[key]
		optional := strings.HasPrefix(key, "$")
		name := strings.TrimPrefix(key, "$")

		if _, present := dst[name]; !present && !optional {
			switch vsrc.(type) {
			case map[string]any:
				dst[name] = map[string]any{}
			case []any:
				dst[name] = []any{}
			default:
				dst[name] = vsrc
			}
		}

		vdst, present := dst[name]
		if !present || vdst == nil {
			continue
		}
		switch s := vsrc.(type) {
		case map[string]any:
			if d, ok := vdst.(map[string]any); ok {
				backfillObject(d, s)
			}
		case []any:
			if d, ok := vdst.([]any); ok {
				backfillList(d, s)
			}
		}
	}
}

// backfillList pairs every source item with every same-shaped destination
// item; list shapes are matched by element, not by position.
func backfillList(dst, src []any) {
	if len(src) == 0 || len(dst) == 0 {
		return
	}
	for _, isrc := range src {
		for _, idst := range dst {
			switch s := isrc.(type) {
			case map[string]any:
				if d, ok := idst.(map[string]any); ok {
					backfillObject(d, s)
				}
			case []any:
				if d, ok := idst.([]any); ok {
					backfillList(d, s)
				}
			}
		}
	}
}

// setACL replaces the manifest's acl section outright.
func setACL(doc map[string]any, viewer, owner string) {
	acl := map[string]any{}
	doc["acl"] = acl
	if viewer != "" {
		acl["viewers"] = []any{viewer}
	}
	if owner != "" {
		acl["owners"] = []any{owner}
	}
}

// setLegalTag overwrites the legal tags of an existing legal section.
func setLegalTag(doc map[string]any, tag string) error {
	legal, ok := doc["legal"].(map[string]any)
	if !ok {
		return fmt.Errorf("manifest has no legal section to tag")
	}
	legal["legaltags"] = []any{tag}
	legal["otherRelevantDataCountries"] = []any{"US"}
	return nil
}
