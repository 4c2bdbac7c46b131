package dynbind

import "context"

// BaseInterface is the identity every native object answers in QueryInterface.
const BaseInterface = "dynbind:object"

// Object is the generic native object surface. Every bound component
// instance, enumerator and callback trampoline implements it.
//
// Property access follows the invoke convention: a get is
// Invoke(ctx, iface, name, nil) and a set is Invoke(ctx, iface, name, []any{v}).
type Object interface {
	// ObjectID returns the native identity of the underlying instance.
	// Two references denote the same entity only if their IDs are equal.
	ObjectID() string

	// Interfaces lists the interface identities the object supports.
	Interfaces() []string

	// QueryInterface returns a view of the object for iface, or false.
	// The returned view is not acquired; callers AddRef what they keep.
	QueryInterface(iface string) (Object, bool)

	// AddRef acquires one native reference.
	AddRef()

	// Release drops one native reference.
	Release()

	// Invoke calls member on the iface view with native values.
	// Object arguments and results are borrowed for the duration of the
	// call; either side AddRefs what it keeps.
	Invoke(ctx context.Context, iface, member string, args []any) (any, error)
}

// EnumValue is the native form of an enumerated value.
type EnumValue struct {
	Name    string
	Ordinal int32
}

func (e EnumValue) String() string {
	return e.Name
}

// Canonical returns the canonical string form.
func (e EnumValue) Canonical() string {
	return e.Name
}

// SameObject reports whether a and b denote the same native entity.
func SameObject(a, b Object) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ObjectID() == b.ObjectID()
}
