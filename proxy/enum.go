package proxy

import (
	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
)

// Enum is a native enumerated value as seen by host code. Host code
// compares it by canonical string only; the native ordinal stays private.
type Enum struct {
	typ     string
	name    string
	ordinal int32
}

// String returns the canonical string form.
func (e Enum) String() string { return e.name }

// Canonical returns the canonical string form.
func (e Enum) Canonical() string { return e.name }

// Type returns the enum type name.
func (e Enum) Type() string { return e.typ }

// Is reports whether e has the canonical string form name.
func (e Enum) Is(name string) bool { return e.name == name }

func (e Enum) native() dynbind.EnumValue {
	return dynbind.EnumValue{Name: e.name, Ordinal: e.ordinal}
}

// enumToNative accepts Enum, dynbind.EnumValue or the canonical string.
// Bare ordinals are rejected.
func enumToNative(v any, tag catalog.TypeTag, path []string) (dynbind.EnumValue, error) {
	var name string
	switch x := v.(type) {
	case Enum:
		if x.typ != "" && x.typ != tag.Name {
			return dynbind.EnumValue{}, errors.InvalidEnum(errors.PhaseMarshal, path, x.name, tag.Name)
		}
		name = x.name
	case dynbind.EnumValue:
		i, ok := tag.CaseIndex(x.Name)
		if !ok || int32(i) != x.Ordinal {
			return dynbind.EnumValue{}, errors.InvalidEnum(errors.PhaseMarshal, path, x.Name, tag.Name)
		}
		return x, nil
	case string:
		name = x
	default:
		return dynbind.EnumValue{}, errors.TypeMismatch(errors.PhaseMarshal, path, typeName(v), tag.String())
	}
	i, ok := tag.CaseIndex(name)
	if !ok {
		return dynbind.EnumValue{}, errors.InvalidEnum(errors.PhaseMarshal, path, name, tag.Name)
	}
	return dynbind.EnumValue{Name: name, Ordinal: int32(i)}, nil
}

// enumToHost accepts the native forms an enum may arrive in: the
// structured value, its canonical string, or an integer ordinal.
func enumToHost(v any, tag catalog.TypeTag, path []string) (Enum, error) {
	var i int
	switch x := v.(type) {
	case dynbind.EnumValue:
		var ok bool
		if i, ok = tag.CaseIndex(x.Name); !ok {
			return Enum{}, errors.InvalidEnum(errors.PhaseMarshal, path, x.Name, tag.Name)
		}
	case string:
		var ok bool
		if i, ok = tag.CaseIndex(x); !ok {
			return Enum{}, errors.InvalidEnum(errors.PhaseMarshal, path, x, tag.Name)
		}
	case int32:
		i = int(x)
	case uint32:
		i = int(x)
	case int:
		i = x
	default:
		return Enum{}, errors.TypeMismatch(errors.PhaseMarshal, path, typeName(v), tag.String())
	}
	if i < 0 || i >= len(tag.Cases) {
		return Enum{}, errors.InvalidEnum(errors.PhaseMarshal, path, v, tag.Name)
	}
	return Enum{typ: tag.Name, name: tag.Cases[i], ordinal: int32(i)}, nil
}
