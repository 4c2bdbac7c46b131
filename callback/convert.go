package callback

import (
	"fmt"
	"reflect"

	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/coerce"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// canonical is implemented by enum values that have a canonical string form.
type canonical interface {
	Canonical() string
}

// convertArg converts a host value produced by the Inbound marshaler into
// the parameter type of a Go method.
func convertArg(v any, t reflect.Type, path []string) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, errors.TypeMismatch(errors.PhaseCallback, path, "nil", t.String())
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	native := t.String()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x, err := coerce.Integer[int64](v, native, path)
		if err != nil {
			return reflect.Value{}, phase(err)
		}
		out := reflect.New(t).Elem()
		if out.OverflowInt(x) {
			return reflect.Value{}, errors.Overflow(errors.PhaseCallback, path, v, native)
		}
		out.SetInt(x)
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		x, err := coerce.Integer[uint64](v, native, path)
		if err != nil {
			return reflect.Value{}, phase(err)
		}
		out := reflect.New(t).Elem()
		if out.OverflowUint(x) {
			return reflect.Value{}, errors.Overflow(errors.PhaseCallback, path, v, native)
		}
		out.SetUint(x)
		return out, nil

	case reflect.Float32, reflect.Float64:
		x, err := coerce.Float[float64](v, native, path)
		if err != nil {
			return reflect.Value{}, phase(err)
		}
		out := reflect.New(t).Elem()
		if out.OverflowFloat(x) {
			return reflect.Value{}, errors.Overflow(errors.PhaseCallback, path, v, native)
		}
		out.SetFloat(x)
		return out, nil

	case reflect.String:
		// Enums reach host methods taking a string as their canonical form.
		if s, ok := v.(canonical); ok {
			return reflect.ValueOf(s.Canonical()).Convert(t), nil
		}
		if rv.Kind() == reflect.String {
			return rv.Convert(t), nil
		}

	case reflect.Bool:
		if rv.Kind() == reflect.Bool {
			return rv.Convert(t), nil
		}

	case reflect.Slice:
		if rv.Kind() == reflect.Slice {
			out := reflect.MakeSlice(t, rv.Len(), rv.Len())
			for i := range rv.Len() {
				elem, err := convertArg(rv.Index(i).Interface(), t.Elem(), append(path, fmt.Sprintf("[%d]", i)))
				if err != nil {
					return reflect.Value{}, err
				}
				out.Index(i).Set(elem)
			}
			return out, nil
		}
	}

	return reflect.Value{}, errors.TypeMismatch(errors.PhaseCallback, path, coerce.TypeName(v), native)
}

// phase re-tags a marshal error raised while entering host code.
func phase(err error) error {
	if e, ok := err.(*errors.Error); ok {
		e.Phase = errors.PhaseCallback
	}
	return err
}
