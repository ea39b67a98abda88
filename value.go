package flatshelf

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"time"
)

// materializer is implemented by proxies, so that assigning a proxy stores a
// copy of what it currently points at.
type materializer interface {
	materializeValue() (any, error)
}

// normalize converts v into the canonical in-memory representation that
// values read back from the store also have: int64 (or uint64 for values that
// do not fit), float64, string, []byte, bool, nil, time.Time, []any,
// map[string]any and *Set. Times are converted to UTC without a monotonic
// reading, since msgpack decodes them in the local zone.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x, nil
	case time.Time:
		return x.UTC().Round(0), nil
	case []byte:
		return slices.Clone(x), nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return normUint(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return normUint(x), nil
	case float32:
		return float64(x), nil
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			ne, err := normalize(e)
			if err != nil {
				return nil, err
			}
			m[k] = ne
		}
		return m, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			ne, err := normalize(e)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return out, nil
	case *Set:
		if x == nil {
			return nil, nil
		}
		return x.Clone(), nil
	case Set:
		return x.Clone(), nil
	case materializer:
		mv, err := x.materializeValue()
		if err != nil {
			return nil, err
		}
		return normalize(mv)
	}
	return normalizeReflect(reflect.ValueOf(v))
}

func normalizeReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return normUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			for i := range b {
				b[i] = byte(rv.Index(i).Uint())
			}
			return b, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			e, err := normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map with %v keys", ErrUnsupportedValue, rv.Type().Key())
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			e, err := normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			m[iter.Key().String()] = e
		}
		return m, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return normalize(rv.Elem().Interface())
	case reflect.Invalid:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, rv.Type())
}

func normUint(v uint64) any {
	if v <= math.MaxInt64 {
		return int64(v)
	}
	return v
}

// classify picks the index node kind of a normalized value.
func classify(v any) nodeKind {
	switch v.(type) {
	case map[string]any:
		return kindInterior
	case []any:
		return kindSequence
	case *Set:
		return kindSet
	default:
		return kindScalar
	}
}

// valuesEqual compares two normalized values.
func valuesEqual(a, b any) bool {
	if sa, ok := a.(*Set); ok {
		sb, ok := b.(*Set)
		return ok && sa.Equal(sb)
	}
	if ma, ok := a.(map[string]any); ok {
		mb, ok := b.(map[string]any)
		if !ok || len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, found := mb[k]
			if !found || !valuesEqual(va, vb) {
				return false
			}
		}
		return true
	}
	if la, ok := a.([]any); ok {
		lb, ok := b.([]any)
		return ok && slices.EqualFunc(la, lb, valuesEqual)
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// compareScalars orders two normalized scalars of compatible types.
func compareScalars(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmp3(x, y), true
		case uint64:
			return -1, true // y > MaxInt64
		case float64:
			return cmp3(float64(x), y), true
		}
	case uint64:
		switch y := b.(type) {
		case int64:
			return 1, true
		case uint64:
			return cmp3(x, y), true
		case float64:
			return cmp3(float64(x), y), true
		}
	case float64:
		switch y := b.(type) {
		case int64:
			return cmp3(x, float64(y)), true
		case uint64:
			return cmp3(x, float64(y)), true
		case float64:
			return cmp3(x, y), true
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp3(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	}
	return 0, false
}

func cmp3[T int64 | uint64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
