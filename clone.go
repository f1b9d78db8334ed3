// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

package taskctx

import (
	"fmt"
	"reflect"

	"github.com/jinzhu/copier"
)

// A Cloner is a value that knows how to produce an independent copy of
// itself. [PolicyCopy] prefers Clone over reflective copying, which makes it
// the way to copy values with unexported state correctly.
type Cloner interface {
	Clone() any
}

var deepCopyOption = copier.Option{DeepCopy: true}

// deepCopy returns a copy of v that shares no mutable state with it. Values
// of immutable kinds, and pointers to anything but structs, are returned as
// is. Unexported struct fields are copied shallowly. On failure the original
// value is returned along with the error.
func deepCopy(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if c, ok := v.(Cloner); ok {
		return c.Clone(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return v, nil
		}
		dst := reflect.New(rv.Type())
		if err := copyInto(dst, v); err != nil {
			return v, err
		}
		return dst.Elem().Interface(), nil

	case reflect.Array:
		dst := reflect.New(rv.Type()).Elem()
		dst.Set(rv)
		if err := deepen(dst); err != nil {
			return v, fmt.Errorf("copy %T: %w", v, err)
		}
		return dst.Interface(), nil

	case reflect.Struct:
		dst := reflect.New(rv.Type())
		if err := copyStructInto(dst, rv, v); err != nil {
			return v, err
		}
		return dst.Elem().Interface(), nil

	case reflect.Pointer:
		if rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return v, nil
		}
		dst := reflect.New(rv.Elem().Type())
		if err := copyStructInto(dst, rv.Elem(), v); err != nil {
			return v, err
		}
		return dst.Interface(), nil

	default:
		return v, nil
	}
}

// copyStructInto copies the struct src into the pointer dst. Unexported fields
// are taken over as they are. Exported references are cleared first so that
// copier allocates fresh ones instead of writing through the source's.
func copyStructInto(dst, src reflect.Value, v any) error {
	dst.Elem().Set(src)
	clearReferences(dst.Elem())
	return copyInto(dst, v)
}

func clearReferences(v reflect.Value) {
	for i := range v.NumField() {
		if !v.Type().Field(i).IsExported() {
			continue
		}
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
			f.SetZero()
		case reflect.Struct:
			clearReferences(f)
		}
	}
}

func copyInto(dst reflect.Value, v any) error {
	if err := copier.CopyWithOption(dst.Interface(), v, deepCopyOption); err != nil {
		return fmt.Errorf("copy %T: %w", v, err)
	}
	if err := deepen(dst.Elem()); err != nil {
		return fmt.Errorf("copy %T: %w", v, err)
	}
	return nil
}

// deepen replaces, in place, the parts of a settable value that copier leaves
// shared with its source: arrays and values held in interfaces, at any depth.
func deepen(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		c, err := deepCopy(v.Elem().Interface())
		if err != nil {
			return err
		}
		return setCopy(v, c)

	case reflect.Array:
		for i := range v.Len() {
			e := v.Index(i)
			if e.Kind() == reflect.Interface {
				if err := deepen(e); err != nil {
					return err
				}
				continue
			}
			c, err := deepCopy(e.Interface())
			if err != nil {
				return err
			}
			if err := setCopy(e, c); err != nil {
				return err
			}
		}

	case reflect.Slice:
		if !mayShare(v.Type().Elem()) {
			return nil
		}
		for i := range v.Len() {
			if err := deepen(v.Index(i)); err != nil {
				return err
			}
		}

	case reflect.Struct:
		for i := range v.NumField() {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if err := deepen(v.Field(i)); err != nil {
				return err
			}
		}

	case reflect.Map:
		if v.IsNil() || !mayShare(v.Type().Elem()) {
			return nil
		}
		iter := v.MapRange()
		for iter.Next() {
			e := reflect.New(v.Type().Elem()).Elem()
			e.Set(iter.Value())
			if err := deepen(e); err != nil {
				return err
			}
			v.SetMapIndex(iter.Key(), e)
		}

	case reflect.Pointer:
		if !v.IsNil() {
			return deepen(v.Elem())
		}
	}
	return nil
}

// setCopy stores c, a copy of v's current value, in v.
func setCopy(v reflect.Value, c any) error {
	if c == nil {
		v.SetZero()
		return nil
	}
	cv := reflect.ValueOf(c)
	if !cv.Type().AssignableTo(v.Type()) {
		return fmt.Errorf("clone of %v is %T", v.Type(), c)
	}
	v.Set(cv)
	return nil
}

// mayShare reports whether a copier result of type t can still hold state
// shared with its source.
func mayShare(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Interface, reflect.Array, reflect.Struct, reflect.Slice, reflect.Map, reflect.Pointer:
		return true
	default:
		return false
	}
}
