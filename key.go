// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import "reflect"

// Key is a typed handle on one entry of a store. Keys with the same name
// refer to the same entry regardless of their type parameter, so the
// conventional way to use them is as package-level variables:
//
//	var RequestID = taskctx.NewKey[string]("request_id")
type Key[T any] struct {
	name string
}

// NewKey returns a key for the entry with the given name.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

func (k Key[T]) Name() string {
	return k.name
}

// Get returns the value stored under k in the current unit's store. The
// boolean is false if the entry is absent or holds a value of another type.
// A stored nil is reported as present if T can be nil.
func (k Key[T]) Get(a *Accessor) (T, bool, error) {
	var zero T
	v, ok, err := a.Lookup(k.name)
	if err != nil || !ok {
		return zero, false, err
	}
	if v == nil {
		return zero, canBeNil(reflect.TypeFor[T]()), nil
	}
	t, ok := v.(T)
	return t, ok, nil
}

func canBeNil(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return true
	default:
		return false
	}
}

// GetOr is like Get but returns def instead of reporting absence.
func (k Key[T]) GetOr(a *Accessor, def T) (T, error) {
	t, ok, err := k.Get(a)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return t, nil
}

func (k Key[T]) Set(a *Accessor, v T) error {
	return a.Set(k.name, v)
}
