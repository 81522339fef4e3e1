package entitystore

import (
	"cmp"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// normalize dereferences pointers and interfaces. A nil pointer yields nil.
func normalize(v any) any {
	if v == nil {
		return nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	return rv.Interface()
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// CompareValues orders two member values. Numbers compare numerically regardless of width,
// strings lexically, booleans false before true, times chronologically. Pointers are dereferenced.
// The boolean is false when the values are not comparable, including when exactly one is nil.
func CompareValues(a, b any) (int, bool) {
	a, b = normalize(a), normalize(b)

	if a == nil || b == nil {
		return 0, a == nil && b == nil
	}

	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}

		return ta.Compare(tb), true
	}

	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)

	switch {
	case isInt(ra) && isInt(rb):
		return cmp.Compare(ra.Int(), rb.Int()), true
	case isUint(ra) && isUint(rb):
		return cmp.Compare(ra.Uint(), rb.Uint()), true
	case isNumber(ra) && isNumber(rb):
		return cmp.Compare(toFloat(ra), toFloat(rb)), true
	case ra.Kind() == reflect.String && rb.Kind() == reflect.String:
		return strings.Compare(ra.String(), rb.String()), true
	case ra.Kind() == reflect.Bool && rb.Kind() == reflect.Bool:
		x, y := ra.Bool(), rb.Bool()
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}

	return 0, false
}

// ValuesEqual reports whether two member values are equal under the rules of CompareValues,
// falling back to deep equality for values CompareValues cannot order.
func ValuesEqual(a, b any) bool {
	if c, ok := CompareValues(a, b); ok {
		return c == 0
	}

	a, b = normalize(a), normalize(b)
	if a == nil || b == nil {
		return false
	}

	return reflect.DeepEqual(a, b)
}

func containsValue(list any, v any) bool {
	rv := reflect.ValueOf(normalize(list))
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return false
	}

	for i := range rv.Len() {
		if ValuesEqual(rv.Index(i).Interface(), v) {
			return true
		}
	}

	return false
}

func asString(v any) (string, bool) {
	v = normalize(v)
	if v == nil {
		return "", false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}

	return rv.String(), true
}

func isInt(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	default:
		return false
	}
}

func isUint(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	default:
		return false
	}
}

func isNumber(v reflect.Value) bool {
	return isInt(v) || isUint(v) || v.Kind() == reflect.Float32 || v.Kind() == reflect.Float64
}

func toFloat(v reflect.Value) float64 {
	switch {
	case isInt(v):
		return float64(v.Int())
	case isUint(v):
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

// formatValue renders a value in the literal syntax understood by Schema.Parse.
func formatValue(v any) string {
	if p, ok := v.(paramRef); ok {
		return "@" + strconv.Itoa(int(p))
	}

	v = normalize(v)
	switch x := v.(type) {
	case nil:
		return "null"
	case time.Time:
		return strconv.Quote(x.Format(time.RFC3339Nano))
	case bool:
		return strconv.FormatBool(x)
	}

	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.String:
		return strconv.Quote(rv.String())
	case rv.Kind() == reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
		parts := make([]string, 0, rv.Len())
		for i := range rv.Len() {
			parts = append(parts, formatValue(rv.Index(i).Interface()))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case rv.Kind() == reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32)
	case rv.Kind() == reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64)
	case isNumber(rv):
		return fmt.Sprint(v)
	default:
		return strconv.Quote(fmt.Sprint(v))
	}
}

// IdentityOf returns the printable identity of an entity implementing Entity for any ID type,
// or an empty string.
func IdentityOf(entity any) string {
	if isNil(entity) {
		return ""
	}

	method := reflect.ValueOf(entity).MethodByName("EntityID")
	if !method.IsValid() || method.Type().NumIn() != 0 || method.Type().NumOut() != 1 {
		return ""
	}

	return fmt.Sprint(method.Call(nil)[0].Interface())
}
