package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ArrayCell binds one coordinate vector of an array parameter to a CSV column.
type ArrayCell struct {
	Coords []int
	Column int
}

// Binding maps a placeholder to CSV columns: a single column index for scalar
// parameters, or one ArrayCell per populated coordinate for array parameters.
type Binding struct {
	Column int
	Cells  []ArrayCell
	Array  bool
}

// Bindings holds the column bindings for every bound placeholder. Parameters
// whose column is absent from the header are simply unbound: their
// substitutions stay empty and the unfilled branches are pruned per row.
type Bindings map[string]Binding

// BindColumns maps each indexed parameter to CSV header columns. Scalar
// parameters match a header equal to the placeholder name (trimmed,
// lower-cased); array parameters of depth d match headers named
// <name>_<i1>_..._<id>.
func BindColumns(header []string, idx Index) (Bindings, error) {
	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.ToLower(strings.TrimSpace(h))
	}

	bindings := make(Bindings)
	for _, param := range sortedParams(idx) {
		occs := idx[param]
		key := strings.ToLower(strings.TrimSpace(param[len(startDelim) : len(param)-len(endDelim)]))

		depth := len(occs[0].Anchors)
		for _, occ := range occs[1:] {
			if len(occ.Anchors) != depth {
				return nil, fmt.Errorf("%w: %s", ErrMixedParameterDepth, param)
			}
		}

		if depth == 0 {
			col, err := columnIndex(names, key)
			if err != nil {
				return nil, err
			}
			if col >= 0 {
				bindings[param] = Binding{Column: col}
			}
			continue
		}

		if len(occs) > 1 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateArrayParameter, param)
		}
		cells, err := bindArray(names, key, depth)
		if err != nil {
			return nil, err
		}
		bindings[param] = Binding{Cells: cells, Array: true}
	}
	return bindings, nil
}

// bindArray finds the maximum header index per coordinate position, then
// enumerates the whole d-dimensional box with the innermost coordinate
// advancing fastest, recording only coordinates that have a matching column.
func bindArray(names []string, key string, depth int) ([]ArrayCell, error) {
	maxIdx := make([]int, depth)
	for _, name := range names {
		coords, ok := matchArrayColumn(name, key, depth)
		if !ok {
			continue
		}
		for i, c := range coords {
			if c > maxIdx[i] {
				maxIdx[i] = c
			}
		}
	}

	var cells []ArrayCell
	coords := make([]int, depth)
	for {
		parts := make([]string, 0, depth+1)
		parts = append(parts, key)
		for _, c := range coords {
			parts = append(parts, strconv.Itoa(c+1))
		}
		col, err := columnIndex(names, strings.Join(parts, "_"))
		if err != nil {
			return nil, err
		}
		if col >= 0 {
			cells = append(cells, ArrayCell{Coords: append([]int(nil), coords...), Column: col})
		}

		done := false
		advanced := false
		for i := depth - 1; i >= 0; i-- {
			next := coords[i] + 1
			if next < maxIdx[i] {
				for j := depth - 1; j >= i; j-- {
					coords[j] = 0
				}
				coords[i] = next
				advanced = true
				break
			}
			done = i == 0
		}
		if done || !advanced {
			break
		}
	}
	return cells, nil
}

// matchArrayColumn parses a header of the form key_i1_..._id with positive
// integer indexes.
func matchArrayColumn(name, key string, depth int) ([]int, bool) {
	if !strings.HasPrefix(name, key+"_") {
		return nil, false
	}
	parts := strings.Split(name[len(key)+1:], "_")
	if len(parts) != depth {
		return nil, false
	}
	coords := make([]int, depth)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || strings.HasPrefix(p, "0") || strings.HasPrefix(p, "+") || strings.HasPrefix(p, "-") {
			return nil, false
		}
		coords[i] = n
	}
	return coords, true
}

// columnIndex returns the index of name in names, -1 when absent, and an
// error when the name appears more than once.
func columnIndex(names []string, name string) (int, error) {
	found := -1
	for i, n := range names {
		if n != name {
			continue
		}
		if found >= 0 {
			return -1, fmt.Errorf("%w: %s", ErrDuplicateColumn, name)
		}
		found = i
	}
	return found, nil
}

func sortedParams(idx Index) []string {
	params := make([]string, 0, len(idx))
	for p := range idx {
		params = append(params, p)
	}
	sort.Strings(params)
	return params
}
