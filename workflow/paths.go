package workflow

import "strings"

// lookupPath resolves a dot-separated path against a context map. It descends
// through nested map[string]any values; a missing segment or a non-map in the
// middle returns ok=false. An empty path returns the whole map.
func lookupPath(ctx map[string]any, path string) (any, bool) {
	if path == "" {
		return ctx, true
	}
	var cur any = ctx
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Truthy applies loose boolean semantics to a context value: nil, false,
// numeric zero, empty string, and empty collections are false; everything
// else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
