package resolver

import (
	"encoding/json"
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"github.com/traffical/traffical-go/pkg/bucketing"
)

// Coerce converts value to the type of def. It reports false when value
// cannot represent def's type; a nil def accepts anything.
//
// Strings and booleans must match exactly. Numeric defaults accept any
// numeric value (including json.Number); integer defaults additionally
// require an integral value within range. Maps, slices, structs and
// pointers are decoded with mapstructure using json tags.
func Coerce(value, def any) (any, bool) {
	if def == nil {
		return normalizeNumbers(value), true
	}
	if value == nil {
		return nil, false
	}

	dt := reflect.TypeOf(def)
	switch dt.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		return reflect.ValueOf(s).Convert(dt).Interface(), true

	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return nil, false
		}
		return reflect.ValueOf(b).Convert(dt).Interface(), true

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := toInt64(value)
		if !ok {
			return nil, false
		}
		out := reflect.New(dt).Elem()
		if out.OverflowInt(i) {
			return nil, false
		}
		out.SetInt(i)
		return out.Interface(), true

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, ok := toUint64(value)
		if !ok {
			return nil, false
		}
		out := reflect.New(dt).Elem()
		if out.OverflowUint(u) {
			return nil, false
		}
		out.SetUint(u)
		return out.Interface(), true

	case reflect.Float32, reflect.Float64:
		f, ok := bucketing.ToFloat(value)
		if !ok || math.IsNaN(f) {
			return nil, false
		}
		out := reflect.New(dt).Elem()
		if out.OverflowFloat(f) {
			return nil, false
		}
		out.SetFloat(f)
		return out.Interface(), true

	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr:
		return decodeStructured(value, dt)
	}

	if reflect.TypeOf(value) == dt {
		return value, true
	}
	return nil, false
}

func decodeStructured(value any, dt reflect.Type) (any, bool) {
	switch value.(type) {
	case map[string]any, []any:
	default:
		if reflect.TypeOf(value) == dt {
			return value, true
		}
		return nil, false
	}

	target := reflect.New(dt)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target.Interface(),
		TagName: "json",
	})
	if err != nil {
		return nil, false
	}
	if err := dec.Decode(normalizeNumbers(value)); err != nil {
		return nil, false
	}
	return target.Elem().Interface(), true
}

// toInt64 accepts integer kinds, integral floats and json.Number.
func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), uint64(v) <= math.MaxInt64
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), v <= math.MaxInt64
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	}
	return 0, false
}

func toUint64(value any) (uint64, bool) {
	if u, ok := value.(uint64); ok {
		return u, true
	}
	i, ok := toInt64(value)
	if !ok || i < 0 {
		return 0, false
	}
	return uint64(i), true
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// normalizeNumbers replaces json.Number with float64 throughout so callers
// of untyped defaults see plain JSON shapes.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeNumbers(item)
		}
		return out
	}
	return v
}

// Get returns values[key] as a T, or def when the key is missing or the
// value cannot be coerced.
func Get[T any](values map[string]any, key string, def T) T {
	v, ok := values[key]
	if !ok {
		return def
	}
	if t, ok := v.(T); ok {
		return t
	}
	c, ok := Coerce(v, def)
	if !ok {
		return def
	}
	if t, ok := c.(T); ok {
		return t
	}
	return def
}
