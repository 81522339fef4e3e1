package memengine

import (
	"reflect"

	"github.com/AntonStoeckl/dynamic-entitystore-go/entitystore"
)

// clone returns a deep copy of entity. Pointers, slices, maps and arrays reachable through
// exported fields are copied recursively, unexported fields and interface values are copied as
// they are. Pending domain events stay with the original. Entities must not contain pointer cycles.
func clone[T any](entity T) T {
	copied := deepCopy(reflect.ValueOf(&entity).Elem()).Interface().(T)

	if recorder, ok := any(copied).(entitystore.EventRecorder); ok {
		recorder.ClearDomainEvents()
	}

	return copied
}

func deepCopy(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}

		c := reflect.New(v.Type().Elem())
		c.Elem().Set(deepCopy(v.Elem()))

		return c

	case reflect.Struct:
		c := reflect.New(v.Type()).Elem()
		c.Set(v)

		for i := range v.NumField() {
			if field := c.Field(i); field.CanSet() {
				field.Set(deepCopy(v.Field(i)))
			}
		}

		return c

	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}

		c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := range v.Len() {
			c.Index(i).Set(deepCopy(v.Index(i)))
		}

		return c

	case reflect.Array:
		c := reflect.New(v.Type()).Elem()
		for i := range v.Len() {
			c.Index(i).Set(deepCopy(v.Index(i)))
		}

		return c

	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}

		c := reflect.MakeMapWithSize(v.Type(), v.Len())
		for iter := v.MapRange(); iter.Next(); {
			c.SetMapIndex(iter.Key(), deepCopy(iter.Value()))
		}

		return c

	default:
		return v
	}
}
