package upstream

import (
	"strconv"
	"strings"
)

// Fields wraps a loosely-typed JSON object whose field names vary between
// API versions. Lookups take candidate keys in priority order.
type Fields map[string]any

// String returns the first non-empty string among keys. A key may use dots
// to reach into nested objects, e.g. "pagination.next".
func (f Fields) String(keys ...string) string {
	for _, key := range keys {
		if s := stringify(f.lookup(key)); s != "" {
			return s
		}
	}
	return ""
}

// List returns the first key that holds an array, keeping only object entries.
func (f Fields) List(keys ...string) []Fields {
	for _, key := range keys {
		raw, ok := f.lookup(key).([]any)
		if !ok {
			continue
		}
		out := make([]Fields, 0, len(raw))
		for _, entry := range raw {
			if obj, ok := entry.(map[string]any); ok {
				out = append(out, Fields(obj))
			}
		}
		return out
	}
	return nil
}

func (f Fields) lookup(key string) any {
	var cur any = map[string]any(f)
	for _, part := range strings.Split(key, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = obj[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
