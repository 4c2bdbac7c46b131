package catalog

// Signature kinds reported by a reflection service. An empty kind means the
// type is a primitive named by TypeSignature.Name.
const (
	SigPrimitive  = ""
	SigEnum       = "enum"
	SigInterface  = "interface"
	SigEnumerator = "enumerator"
	SigCallback   = "callback"
	SigSequence   = "sequence"
)

// InterfaceSignature is the raw shape of one interface as reported by the
// reflection service. It is turned into an InterfaceDescriptor once.
type InterfaceSignature struct {
	ID         string
	Methods    []MethodSignature
	Properties []PropertySignature
}

// MethodSignature describes one method in declaration order.
type MethodSignature struct {
	Name   string
	Params []ParamSignature
	Result TypeSignature
	// Raises reports whether the method may signal a native failure.
	Raises bool
	// Optional callback methods may be absent from host objects.
	Optional bool
}

// ParamSignature is a named, typed parameter.
type ParamSignature struct {
	Name string
	Type TypeSignature
}

// PropertySignature describes one attribute.
type PropertySignature struct {
	Name      string
	Type      TypeSignature
	ReadOnly  bool
	WriteOnly bool
}

// TypeSignature is a reflected type name.
type TypeSignature struct {
	Elem      *TypeSignature
	Kind      string
	Name      string
	Interface string
	Cases     []string
}

// Prim names a primitive type ("long", "double", "wstring", "u32", ...).
func Prim(name string) TypeSignature {
	return TypeSignature{Name: name}
}

// VoidType is the result of a method returning nothing.
func VoidType() TypeSignature {
	return TypeSignature{Name: "void"}
}

// EnumType declares an enumerated type with ordered cases.
func EnumType(name string, cases ...string) TypeSignature {
	return TypeSignature{Kind: SigEnum, Name: name, Cases: cases}
}

// InterfaceType refers to a native interface.
func InterfaceType(id string) TypeSignature {
	return TypeSignature{Kind: SigInterface, Interface: id}
}

// EnumeratorType refers to an enumerator interface yielding elem objects.
func EnumeratorType(id, elem string) TypeSignature {
	e := InterfaceType(elem)
	return TypeSignature{Kind: SigEnumerator, Interface: id, Elem: &e}
}

// CallbackType refers to an interface implemented by the host.
func CallbackType(id string) TypeSignature {
	return TypeSignature{Kind: SigCallback, Interface: id}
}

// SequenceType declares a sequence of elem values.
func SequenceType(elem TypeSignature) TypeSignature {
	return TypeSignature{Kind: SigSequence, Elem: &elem}
}

// Param is shorthand for a ParamSignature.
func Param(name string, t TypeSignature) ParamSignature {
	return ParamSignature{Name: name, Type: t}
}
