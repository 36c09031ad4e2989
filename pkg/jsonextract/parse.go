// Package jsonextract implements the tolerant JSON extraction used to pull
// structured data out of free-form LLM completions. Models wrap JSON in
// markdown fences, prepend commentary, or emit trailing prose;
// ParseStructured recovers a best-effort result from all of these without
// ever returning an error to the caller.
package jsonextract

import (
	"encoding/json"
	"math"
	"strings"
)

// ParseStructured attempts to recover a JSON object or array from text,
// falling back to def when nothing usable is found. It never panics and
// never returns an error; callers get a decoded value or the provided
// default:
//
//  1. trim surrounding whitespace
//  2. strip a leading/trailing ```json or ``` fence
//  3. try strict json.Unmarshal
//  4. fall back to the substring between the first '{' and the last '}'
//  5. return def if all of the above fail
func ParseStructured(text string, def any) any {
	trimmed := strings.TrimSpace(text)
	trimmed = stripFence(trimmed)

	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start != -1 && end != -1 && end > start {
		candidate := trimmed[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out
		}
	}

	return def
}

// stripFence removes a single leading ```json or ``` fence and a trailing
// ``` fence, if present.
func stripFence(s string) string {
	switch {
	case strings.HasPrefix(s, "```json"):
		s = strings.TrimPrefix(s, "```json")
	case strings.HasPrefix(s, "```"):
		s = strings.TrimPrefix(s, "```")
	default:
		return s
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// AsObject type-asserts the result of ParseStructured into a JSON object,
// returning ok=false (never panicking) on a mismatch.
func AsObject(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// AsArray type-asserts the result of ParseStructured into a JSON array.
func AsArray(v any) ([]any, bool) {
	a, ok := v.([]any)
	return a, ok
}

// StringField reads a string field from a decoded object, returning def if
// absent or of the wrong type.
func StringField(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// BoolField reads a bool field from a decoded object, returning def if
// absent or of the wrong type.
func BoolField(m map[string]any, key string, def bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// IntField reads a numeric field from a decoded object (JSON numbers decode
// to float64), rounding toward the nearest integer. Returns def if absent or
// of the wrong type.
func IntField(m map[string]any, key string, def int) int {
	if v, ok := m[key]; ok {
		if f, ok := v.(float64); ok {
			return int(math.Round(f))
		}
	}
	return def
}

// StringSliceField reads a []string field, skipping any non-string entries.
func StringSliceField(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
