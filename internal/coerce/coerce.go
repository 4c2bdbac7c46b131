// Package coerce converts host values to native scalar kinds without
// silent loss. Every conversion either preserves the value exactly or
// fails with a type mismatch.
package coerce

import (
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/exp/constraints"

	"github.com/wippyai/dynbind/errors"
)

// Integer converts v to the integer type T. Integral floats are accepted;
// values outside T's range are rejected.
func Integer[T constraints.Integer](v any, native string, path []string) (T, error) {
	switch x := v.(type) {
	case int:
		return fromSigned[T](int64(x), v, native, path)
	case int8:
		return fromSigned[T](int64(x), v, native, path)
	case int16:
		return fromSigned[T](int64(x), v, native, path)
	case int32:
		return fromSigned[T](int64(x), v, native, path)
	case int64:
		return fromSigned[T](x, v, native, path)
	case uint:
		return fromUnsigned[T](uint64(x), v, native, path)
	case uint8:
		return fromUnsigned[T](uint64(x), v, native, path)
	case uint16:
		return fromUnsigned[T](uint64(x), v, native, path)
	case uint32:
		return fromUnsigned[T](uint64(x), v, native, path)
	case uint64:
		return fromUnsigned[T](x, v, native, path)
	case uintptr:
		return fromUnsigned[T](uint64(x), v, native, path)
	case float32:
		return fromFloat[T](float64(x), v, native, path)
	case float64:
		return fromFloat[T](x, v, native, path)
	}
	return 0, errors.TypeMismatch(errors.PhaseMarshal, path, TypeName(v), native)
}

func fromSigned[T constraints.Integer](x int64, v any, native string, path []string) (T, error) {
	t := T(x)
	if int64(t) != x || (t < 0) != (x < 0) {
		return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
	}
	return t, nil
}

func fromUnsigned[T constraints.Integer](x uint64, v any, native string, path []string) (T, error) {
	t := T(x)
	if t < 0 || uint64(t) != x {
		return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
	}
	return t, nil
}

func fromFloat[T constraints.Integer](f float64, v any, native string, path []string) (T, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
			Path(path...).
			GoType(TypeName(v)).
			NativeType(native).
			Value(v).
			Detail("value is not integral").
			Build()
	}
	switch {
	case f >= -(1<<63) && f < 1<<63:
		return fromSigned[T](int64(f), v, native, path)
	case f >= 0 && f < 1<<64:
		return fromUnsigned[T](uint64(f), v, native, path)
	}
	return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
}

// Float converts v to the float type T. Integers are accepted only when T
// represents them exactly. Narrowing a finite float64 that overflows T is
// rejected; rounding of the mantissa is allowed.
func Float[T constraints.Float](v any, native string, path []string) (T, error) {
	switch x := v.(type) {
	case float32:
		return T(x), nil
	case float64:
		t := T(x)
		if !math.IsInf(x, 0) && math.IsInf(float64(t), 0) {
			return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
		}
		return t, nil
	case int:
		return exactSigned[T](int64(x), v, native, path)
	case int8:
		return exactSigned[T](int64(x), v, native, path)
	case int16:
		return exactSigned[T](int64(x), v, native, path)
	case int32:
		return exactSigned[T](int64(x), v, native, path)
	case int64:
		return exactSigned[T](x, v, native, path)
	case uint:
		return exactUnsigned[T](uint64(x), v, native, path)
	case uint8:
		return exactUnsigned[T](uint64(x), v, native, path)
	case uint16:
		return exactUnsigned[T](uint64(x), v, native, path)
	case uint32:
		return exactUnsigned[T](uint64(x), v, native, path)
	case uint64:
		return exactUnsigned[T](x, v, native, path)
	}
	return 0, errors.TypeMismatch(errors.PhaseMarshal, path, TypeName(v), native)
}

func exactSigned[T constraints.Float](x int64, v any, native string, path []string) (T, error) {
	f := float64(x)
	if f >= 1<<63 || int64(f) != x {
		return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
	}
	t := T(f)
	if float64(t) != f {
		return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
	}
	return t, nil
}

func exactUnsigned[T constraints.Float](x uint64, v any, native string, path []string) (T, error) {
	f := float64(x)
	if f >= 1<<64 || uint64(f) != x {
		return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
	}
	t := T(f)
	if float64(t) != f {
		return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
	}
	return t, nil
}

// Char accepts a rune or a string holding exactly one rune.
func Char(v any, native string, path []string) (rune, error) {
	switch x := v.(type) {
	case rune:
		if !utf8.ValidRune(x) {
			return 0, errors.Overflow(errors.PhaseMarshal, path, v, native)
		}
		return x, nil
	case string:
		r, size := utf8.DecodeRuneInString(x)
		if size == 0 || size != len(x) || r == utf8.RuneError {
			return 0, errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
				Path(path...).
				GoType("string").
				NativeType(native).
				Value(v).
				Detail("expected a single character").
				Build()
		}
		return r, nil
	}
	return 0, errors.TypeMismatch(errors.PhaseMarshal, path, TypeName(v), native)
}

// Bool accepts only Go booleans.
func Bool(v any, native string, path []string) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errors.TypeMismatch(errors.PhaseMarshal, path, TypeName(v), native)
	}
	return b, nil
}

// String accepts strings and byte slices.
func String(v any, native string, path []string) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", errors.TypeMismatch(errors.PhaseMarshal, path, TypeName(v), native)
}

// TypeName returns a short Go type name for error messages.
func TypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
