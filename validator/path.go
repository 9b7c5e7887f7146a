package validator

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/yalp/jsonpath"
)

var bracketIndex = regexp.MustCompile(`\[(\w+)\]`)

// ParsePath splits a path expression into segments: "a.b[0].c" becomes
// ["a", "b", "0", "c"]. Empty segments are dropped.
func ParsePath(path string) []string {
	normalized := bracketIndex.ReplaceAllString(path, ".$1")

	parts := strings.Split(normalized, ".")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// IsJSONPath reports whether a target should be resolved with JSONPath
// rather than the dotted grammar.
func IsJSONPath(path string) bool {
	return strings.HasPrefix(path, "$")
}

// Resolve returns the value addressed by path. An empty path addresses data itself.
// The boolean is false when any segment is missing or the value on the way is not
// indexable; Resolve never panics.
func Resolve(data any, path string) (any, bool) {
	if path == "" {
		return data, true
	}

	if IsJSONPath(path) {
		v, err := jsonpath.Read(data, path)
		if err != nil {
			return nil, false
		}
		return v, true
	}

	current := data
	for _, segment := range ParsePath(path) {
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// HasPath reports whether every segment of path names a key (or index) that is
// present, even if the final value is null. An empty path names nothing.
func HasPath(data any, path string) bool {
	if IsJSONPath(path) {
		_, ok := Resolve(data, path)
		return ok
	}

	if len(ParsePath(path)) == 0 {
		return false
	}
	_, ok := Resolve(data, path)
	return ok
}

func child(current any, segment string) (any, bool) {
	switch c := current.(type) {
	case nil:
		return nil, false
	case map[string]any:
		v, ok := c[segment]
		return v, ok
	case []any:
		idx, ok := arrayIndex(segment, len(c))
		if !ok {
			return nil, false
		}
		return c[idx], true
	}

	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, false
		}
		idx, ok := arrayIndex(segment, rv.Len())
		if !ok {
			return nil, false
		}
		return rv.Index(idx).Interface(), true
	default:
		return nil, false
	}
}

// arrayIndex accepts only canonical decimal indices ("1", not "01" or "+1").
func arrayIndex(segment string, length int) (int, bool) {
	idx, err := strconv.Atoi(segment)
	if err != nil || strconv.Itoa(idx) != segment {
		return 0, false
	}
	if idx < 0 || idx >= length {
		return 0, false
	}
	return idx, true
}
