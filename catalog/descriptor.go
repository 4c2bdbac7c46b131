package catalog

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/wippyai/dynbind/errors"
)

// InterfaceDescriptor is the immutable dispatch table of one interface.
// Methods keep declaration order. Member names are unique across methods
// and properties.
type InterfaceDescriptor struct {
	methods    map[string]*MethodDescriptor
	properties map[string]*PropertyDescriptor
	// Next and HasNext are set when the interface is an enumerator.
	Next       *MethodDescriptor
	HasNext    *MethodDescriptor
	ID         string
	Methods    []*MethodDescriptor
	Properties []*PropertyDescriptor
}

// MethodDescriptor describes a callable member.
type MethodDescriptor struct {
	Name     string
	Params   []ParamDescriptor
	Result   TypeTag
	Raises   bool
	Optional bool
}

// Arity returns the number of declared parameters.
func (m *MethodDescriptor) Arity() int {
	return len(m.Params)
}

// ParamDescriptor is a resolved parameter.
type ParamDescriptor struct {
	Name string
	Type TypeTag
}

// PropertyDescriptor describes an attribute.
type PropertyDescriptor struct {
	Name     string
	Type     TypeTag
	Readable bool
	Writable bool
}

// Method looks up a method by name.
func (d *InterfaceDescriptor) Method(name string) (*MethodDescriptor, bool) {
	m, ok := d.methods[name]
	return m, ok
}

// Property looks up a property by name.
func (d *InterfaceDescriptor) Property(name string) (*PropertyDescriptor, bool) {
	p, ok := d.properties[name]
	return p, ok
}

// IsEnumerator reports whether the interface follows the next/has-next protocol.
func (d *InterfaceDescriptor) IsEnumerator() bool {
	return d.Next != nil
}

// Build resolves a reflected signature into a descriptor.
func Build(sig *InterfaceSignature) (*InterfaceDescriptor, error) {
	if sig == nil || sig.ID == "" {
		return nil, errors.InvalidDescriptor("", "", "interface signature without identity")
	}

	d := &InterfaceDescriptor{
		ID:         sig.ID,
		Methods:    make([]*MethodDescriptor, 0, len(sig.Methods)),
		Properties: make([]*PropertyDescriptor, 0, len(sig.Properties)),
		methods:    make(map[string]*MethodDescriptor, len(sig.Methods)),
		properties: make(map[string]*PropertyDescriptor, len(sig.Properties)),
	}
	seen := make(map[string]bool, len(sig.Methods)+len(sig.Properties))

	for _, ms := range sig.Methods {
		if ms.Name == "" {
			return nil, errors.InvalidDescriptor(sig.ID, "", "method without name")
		}
		if seen[ms.Name] {
			return nil, errors.InvalidDescriptor(sig.ID, ms.Name, "duplicate member")
		}
		seen[ms.Name] = true

		m := &MethodDescriptor{
			Name:     ms.Name,
			Params:   make([]ParamDescriptor, len(ms.Params)),
			Raises:   ms.Raises,
			Optional: ms.Optional,
		}
		for i, ps := range ms.Params {
			tag, err := resolve(ps.Type)
			if err != nil {
				return nil, errors.InvalidDescriptor(sig.ID, ms.Name, fmt.Sprintf("parameter %d: %v", i, err))
			}
			if tag.IsVoid() {
				return nil, errors.InvalidDescriptor(sig.ID, ms.Name, fmt.Sprintf("parameter %d is void", i))
			}
			name := ps.Name
			if name == "" {
				name = fmt.Sprintf("arg%d", i)
			}
			m.Params[i] = ParamDescriptor{Name: name, Type: tag}
		}
		result, err := resolve(ms.Result)
		if err != nil {
			return nil, errors.InvalidDescriptor(sig.ID, ms.Name, "result: "+err.Error())
		}
		m.Result = result

		d.Methods = append(d.Methods, m)
		d.methods[m.Name] = m
	}

	for _, ps := range sig.Properties {
		if ps.Name == "" {
			return nil, errors.InvalidDescriptor(sig.ID, "", "property without name")
		}
		if seen[ps.Name] {
			return nil, errors.InvalidDescriptor(sig.ID, ps.Name, "duplicate member")
		}
		seen[ps.Name] = true
		if ps.ReadOnly && ps.WriteOnly {
			return nil, errors.InvalidDescriptor(sig.ID, ps.Name, "property is neither readable nor writable")
		}

		tag, err := resolve(ps.Type)
		if err != nil {
			return nil, errors.InvalidDescriptor(sig.ID, ps.Name, err.Error())
		}
		if tag.IsVoid() {
			return nil, errors.InvalidDescriptor(sig.ID, ps.Name, "property is void")
		}
		p := &PropertyDescriptor{
			Name:     ps.Name,
			Type:     tag,
			Readable: !ps.WriteOnly,
			Writable: !ps.ReadOnly,
		}
		d.Properties = append(d.Properties, p)
		d.properties[p.Name] = p
	}

	d.Next, d.HasNext = enumeratorRoles(d.Methods)
	return d, nil
}

// enumeratorRoles finds the zero-argument "next" method returning an object
// and the optional zero-argument "hasNext" method returning bool.
func enumeratorRoles(methods []*MethodDescriptor) (next, hasNext *MethodDescriptor) {
	for _, m := range methods {
		if m.Arity() != 0 {
			continue
		}
		switch {
		case next == nil && m.Result.Kind == KindInterface && hasWordPrefix(m.Name, "next"):
			next = m
		case hasNext == nil && m.Result.Kind == KindBool && (m.Name == "hasNext" || m.Name == "hasMore"):
			hasNext = m
		}
	}
	if next == nil {
		return nil, nil
	}
	return next, hasNext
}

// hasWordPrefix matches "next" and "nextComponent" but not "nextant".
func hasWordPrefix(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	rest := name[len(prefix):]
	if rest == "" {
		return true
	}
	r := rune(rest[0])
	return unicode.IsUpper(r) || r == '-' || r == '_'
}

func resolve(ts TypeSignature) (TypeTag, error) {
	switch ts.Kind {
	case SigPrimitive:
		return Primitive(ts.Name)

	case SigEnum:
		if ts.Name == "" {
			return TypeTag{}, fmt.Errorf("enum without name")
		}
		if len(ts.Cases) == 0 {
			return TypeTag{}, fmt.Errorf("enum %s has no cases", ts.Name)
		}
		seen := make(map[string]bool, len(ts.Cases))
		for _, c := range ts.Cases {
			if c == "" || seen[c] {
				return TypeTag{}, fmt.Errorf("enum %s has an empty or duplicate case %q", ts.Name, c)
			}
			seen[c] = true
		}
		return enumTag(ts.Name, ts.Cases), nil

	case SigInterface, SigCallback:
		if ts.Interface == "" {
			return TypeTag{}, fmt.Errorf("%s type without interface identity", ts.Kind)
		}
		kind := KindInterface
		if ts.Kind == SigCallback {
			kind = KindCallback
		}
		return TypeTag{Kind: kind, Interface: ts.Interface, Name: ts.Interface}, nil

	case SigEnumerator:
		if ts.Interface == "" {
			return TypeTag{}, fmt.Errorf("enumerator type without interface identity")
		}
		if ts.Elem == nil {
			return TypeTag{}, fmt.Errorf("enumerator %s without element type", ts.Interface)
		}
		elem, err := resolve(*ts.Elem)
		if err != nil {
			return TypeTag{}, err
		}
		if elem.Kind != KindInterface {
			return TypeTag{}, fmt.Errorf("enumerator %s yields %s, want an interface", ts.Interface, elem)
		}
		return TypeTag{Kind: KindEnumerator, Interface: ts.Interface, Name: ts.Interface, Elem: &elem}, nil

	case SigSequence:
		if ts.Elem == nil {
			return TypeTag{}, fmt.Errorf("sequence without element type")
		}
		elem, err := resolve(*ts.Elem)
		if err != nil {
			return TypeTag{}, err
		}
		if elem.IsVoid() {
			return TypeTag{}, fmt.Errorf("sequence of void")
		}
		return TypeTag{Kind: KindSequence, Elem: &elem}, nil

	default:
		return TypeTag{}, fmt.Errorf("unknown type kind %q", ts.Kind)
	}
}
