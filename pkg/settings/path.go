package settings

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/sinara-hw/stabilizer-go/pkg/wire"
)

// Path errors.
var (
	// ErrUnknownPath indicates the path does not address a setting.
	ErrUnknownPath = errors.New("unknown settings path")

	// ErrDecode indicates the payload does not decode into the addressed setting.
	ErrDecode = errors.New("invalid settings value")
)

// Resolve returns the addressable value at path inside the struct pointed to
// by target. Nil pointers along a valid path are allocated; a failed lookup
// leaves target unchanged.
func Resolve(target any, path string) (reflect.Value, error) {
	v, _, err := resolve(target, path)
	return v, err
}

// resolve is Resolve returning an undo function that clears the pointers it
// allocated on the way.
func resolve(target any, path string) (_ reflect.Value, _ func(), err error) {
	var allocated []reflect.Value
	undo := func() {
		for i := len(allocated) - 1; i >= 0; i-- {
			allocated[i].SetZero()
		}
	}
	defer func() {
		if err != nil {
			undo()
		}
	}()

	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return reflect.Value{}, nil, fmt.Errorf("settings target must be a non-nil pointer, got %T", target)
	}
	v = v.Elem()

	if path == "" {
		return reflect.Value{}, nil, fmt.Errorf("%w: empty path", ErrUnknownPath)
	}

	for _, segment := range strings.Split(path, "/") {
		for v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
				allocated = append(allocated, v)
			}
			v = v.Elem()
		}

		switch v.Kind() {
		case reflect.Struct:
			field, ok := fieldByName(v, segment)
			if !ok {
				return reflect.Value{}, nil, fmt.Errorf("%w: %q has no field %q", ErrUnknownPath, path, segment)
			}
			v = field

		case reflect.Array, reflect.Slice:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= v.Len() {
				return reflect.Value{}, nil, fmt.Errorf("%w: %q index %q out of range", ErrUnknownPath, path, segment)
			}
			v = v.Index(idx)

		default:
			return reflect.Value{}, nil, fmt.Errorf("%w: %q descends into %s", ErrUnknownPath, path, v.Kind())
		}
	}
	return v, undo, nil
}

// fieldByName finds the exported field whose settings tag or lowercased name is name.
func fieldByName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("settings")
		if tag == "-" {
			continue
		}
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// Set decodes payload into the setting at path. On error the target is unchanged.
func Set(target any, path string, payload []byte) error {
	_, err := set(target, path, payload)
	return err
}

// set applies the change and returns a function restoring the previous value.
func set(target any, path string, payload []byte) (func(), error) {
	field, undo, err := resolve(target, path)
	if err != nil {
		return nil, err
	}

	decoded := reflect.New(field.Type())
	if err := wire.Unmarshal(payload, decoded.Interface()); err != nil {
		undo()
		return nil, fmt.Errorf("%w for %q: %v", ErrDecode, path, err)
	}

	old := reflect.New(field.Type()).Elem()
	old.Set(field)
	field.Set(decoded.Elem())

	return func() {
		field.Set(old)
		undo()
	}, nil
}

// Paths lists every leaf path of the settings struct pointed to by target.
func Paths(target any) []string {
	v := reflect.ValueOf(target)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	var paths []string
	walk(v, "", &paths)
	return paths
}

func walk(v reflect.Value, prefix string, paths *[]string) {
	join := func(s string) string {
		if prefix == "" {
			return s
		}
		return prefix + "/" + s
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		if t.NumField() == 0 {
			break
		}
		for i := range t.NumField() {
			f := t.Field(i)
			tag := f.Tag.Get("settings")
			if !f.IsExported() || tag == "-" {
				continue
			}
			if tag == "" {
				tag = strings.ToLower(f.Name)
			}
			walk(v.Field(i), join(tag), paths)
		}
		return
	case reflect.Array:
		for i := range v.Len() {
			walk(v.Index(i), join(strconv.Itoa(i)), paths)
		}
		return
	}

	if prefix != "" {
		*paths = append(*paths, prefix)
	}
}
