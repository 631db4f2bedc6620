package template

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Typed placeholders: a leaf whose whole value is func({{param}}) is replaced
// with a coerced value instead of the substituted string.
var coerceFuncs = []string{"int", "float", "bool", "datetime_YYYY-MM-DD", "datetime_MM/DD/YYYY"}

// coerceTag returns the coercion function name when the trimmed leaf is
// exactly fn(param) for one of the known functions.
func coerceTag(leaf, param string) string {
	leaf = strings.TrimSpace(leaf)
	for _, fn := range coerceFuncs {
		if leaf == fn+"("+param+")" {
			return fn
		}
	}
	return ""
}

func coerceValue(fn, data string) (any, error) {
	switch fn {
	case "bool":
		switch strings.ToLower(data) {
		case "true", "yes", "y", "t", "1":
			return true, nil
		}
		return false, nil
	case "datetime_YYYY-MM-DD":
		t, err := time.Parse("2006-01-02", data)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", data, err)
		}
		return t.Format("2006-01-02T15:04:05Z"), nil
	case "datetime_MM/DD/YYYY":
		t, err := time.Parse("01/02/2006", data)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", data, err)
		}
		return t.Format("2006-01-02T15:04:05"), nil
	case "int":
		n, err := strconv.Atoi(data)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", data, err)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(data, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", data, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown coercion %q", fn)
}
