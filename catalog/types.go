package catalog

import (
	"fmt"
	"strings"

	"go.bytecodealliance.org/wit"
)

// Kind classifies a type tag for dispatch.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindScalar // integers, floats and char
	KindString
	KindEnum
	KindInterface
	KindEnumerator
	KindCallback
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindScalar:
		return "scalar"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindInterface:
		return "interface"
	case KindEnumerator:
		return "enumerator"
	case KindCallback:
		return "callback"
	case KindSequence:
		return "sequence"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// TypeTag is the resolved type of a parameter, result or property.
//
// Primitive and enum tags carry their WIT type: wit.Bool, wit.S8..wit.U64,
// wit.F32, wit.F64, wit.Char, wit.String, or a *wit.TypeDef whose Kind is
// *wit.Enum. Interface, enumerator and callback tags carry an interface
// identity. An enumerator's Elem is the interface tag of its elements; a
// sequence's Elem is the element tag.
type TypeTag struct {
	WIT       wit.Type
	Elem      *TypeTag
	Name      string
	Interface string
	Cases     []string
	Kind      Kind
}

// Void is the tag of methods without a result.
var Void = TypeTag{Kind: KindVoid, Name: "void"}

// IsVoid reports whether t carries no value.
func (t TypeTag) IsVoid() bool {
	return t.Kind == KindVoid
}

// IsObject reports whether values of t are native object references.
func (t TypeTag) IsObject() bool {
	switch t.Kind {
	case KindInterface, KindEnumerator, KindCallback:
		return true
	}
	return false
}

// CaseIndex returns the ordinal of an enum case.
func (t TypeTag) CaseIndex(name string) (int, bool) {
	for i, c := range t.Cases {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

func (t TypeTag) String() string {
	switch t.Kind {
	case KindVoid:
		return "void"
	case KindEnum:
		return "enum " + t.Name
	case KindInterface:
		return t.Interface
	case KindEnumerator:
		if t.Elem != nil {
			return "enumerator<" + t.Elem.Interface + ">"
		}
		return "enumerator"
	case KindCallback:
		return "callback " + t.Interface
	case KindSequence:
		if t.Elem != nil {
			return "sequence<" + t.Elem.String() + ">"
		}
		return "sequence"
	default:
		if t.Name != "" {
			return t.Name
		}
		return WITName(t.WIT)
	}
}

// primitives maps the component model's primitive spellings to WIT types.
var primitives = map[string]wit.Type{
	"boolean":            wit.Bool{},
	"char":               wit.Char{},
	"octet":              wit.U8{},
	"short":              wit.S16{},
	"unsigned short":     wit.U16{},
	"long":               wit.S32{},
	"unsigned long":      wit.U32{},
	"long long":          wit.S64{},
	"unsigned long long": wit.U64{},
	"float":              wit.F32{},
	"double":             wit.F64{},
	"string":             wit.String{},
	"wstring":            wit.String{},
}

// Primitive resolves a primitive type name. Component model spellings
// ("unsigned long", "double") are tried first, then WIT spellings ("u32",
// "f64"). "void" resolves to Void.
func Primitive(name string) (TypeTag, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "void" || name == "" {
		return Void, nil
	}
	wt, ok := primitives[name]
	if !ok {
		parsed, err := wit.ParseType(name)
		if err != nil {
			return TypeTag{}, fmt.Errorf("unknown primitive type %q: %w", name, err)
		}
		wt = parsed
	}
	return primitiveTag(name, wt)
}

func primitiveTag(name string, wt wit.Type) (TypeTag, error) {
	switch wt.(type) {
	case wit.Bool:
		return TypeTag{Kind: KindBool, WIT: wt, Name: name}, nil
	case wit.String:
		return TypeTag{Kind: KindString, WIT: wt, Name: name}, nil
	case wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.S64, wit.U64,
		wit.F32, wit.F64, wit.Char:
		return TypeTag{Kind: KindScalar, WIT: wt, Name: name}, nil
	default:
		return TypeTag{}, fmt.Errorf("type %q is not a primitive", name)
	}
}

// WITName returns the WIT spelling of a primitive or the name of a typedef.
func WITName(t wit.Type) string {
	switch v := t.(type) {
	case nil:
		return "void"
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		return "typedef"
	default:
		return fmt.Sprintf("%T", t)
	}
}

func enumTag(name string, cases []string) TypeTag {
	witCases := make([]wit.EnumCase, len(cases))
	for i, c := range cases {
		witCases[i] = wit.EnumCase{Name: c}
	}
	n := name
	return TypeTag{
		Kind:  KindEnum,
		Name:  name,
		Cases: append([]string(nil), cases...),
		WIT:   &wit.TypeDef{Name: &n, Kind: &wit.Enum{Cases: witCases}},
	}
}
