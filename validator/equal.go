package validator

import (
	"fmt"
	"reflect"

	"github.com/bytedance/sonic"
)

// DeepEqual reports whether two JSON-like values are structurally equal.
// Objects compare by key set and per-key value regardless of key order, arrays
// compare by index, and every numeric Go type compares as a JSON number.
// There is no coercion between types: 1 and "1" differ.
func DeepEqual(a, b any) bool {
	a, b = canonical(a), canonical(b)

	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !DeepEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, present := y[k]
			if !present || !DeepEqual(xv, yv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// strictEqual is membership equality: scalars compare by value, composites
// never match.
func strictEqual(a, b any) bool {
	a, b = canonical(a), canonical(b)
	if isComposite(a) || isComposite(b) {
		return false
	}
	return DeepEqual(a, b)
}

func isComposite(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

// canonical converts one level of a value to the shapes produced by a JSON
// decoder: nil, bool, float64, string, []any or map[string]any.
func canonical(v any) any {
	switch t := v.(type) {
	case nil, bool, float64, string, []any, map[string]any:
		return v
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Bool:
		return rv.Bool()
	case reflect.String:
		return rv.String()
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return canonical(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return out
	case reflect.Struct:
		raw, err := sonic.Marshal(v)
		if err != nil {
			return v
		}
		var generic any
		if err := sonic.Unmarshal(raw, &generic); err != nil {
			return v
		}
		return generic
	default:
		return v
	}
}

// toNumber returns the numeric value of v when v is a JSON number.
func toNumber(v any) (float64, bool) {
	f, ok := canonical(v).(float64)
	return f, ok
}
