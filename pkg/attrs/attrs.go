// Package attrs reads values back out of slog-style key/value slices.
package attrs

import "fmt"

// ExtractString returns the value for key in a [key1, value1, key2, value2, ...]
// slice. Strings and fmt.Stringers are accepted; anything else yields "".
func ExtractString(attrs []any, key string) string {
	v, ok := lookup(attrs, key)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return ""
}

// ExtractInt returns the int value for key, or 0.
func ExtractInt(attrs []any, key string) int {
	v, ok := lookup(attrs, key)
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}

func lookup(attrs []any, key string) (any, bool) {
	for i := 0; i < len(attrs)-1; i += 2 {
		if k, ok := attrs[i].(string); ok && k == key {
			return attrs[i+1], true
		}
	}
	return nil, false
}
