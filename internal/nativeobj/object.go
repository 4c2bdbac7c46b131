// Package nativeobj implements dynbind.Object for components written in Go.
// Fixture modules and tests use it to stand in for native implementations.
package nativeobj

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/errors"
)

// Method implements one native member.
type Method func(ctx context.Context, args []any) (any, error)

// Getter and Setter implement one native property.
type (
	Getter func(ctx context.Context) (any, error)
	Setter func(ctx context.Context, v any) error
)

type property struct {
	get Getter
	set Setter
}

var seq atomic.Uint64

// NextID returns a process-unique object identity with the given prefix.
func NextID(prefix string) string {
	return prefix + "-" + strconv.FormatUint(seq.Add(1), 10)
}

// Object is a native object assembled from Go functions. Its reference
// count and call counters are observable, so tests can check balance.
type Object struct {
	id         string
	mu         sync.RWMutex
	methods    map[string]map[string]Method
	properties map[string]map[string]property
	refs       atomic.Int64
	addRefs    atomic.Int64
	releases   atomic.Int64
	calls      atomic.Int64
}

var _ dynbind.Object = (*Object)(nil)

// New creates an object with identity id and no interfaces.
func New(id string) *Object {
	return &Object{
		id:         id,
		methods:    make(map[string]map[string]Method),
		properties: make(map[string]map[string]property),
	}
}

// Implement declares that the object supports iface, even without members.
func (o *Object) Implement(iface string) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure(iface)
	return o
}

// Method adds a method to iface.
func (o *Object) Method(iface, name string, fn Method) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure(iface)
	o.methods[iface][name] = fn
	return o
}

// Property adds a property to iface. A nil setter makes it read-only.
func (o *Object) Property(iface, name string, get Getter, set Setter) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure(iface)
	o.properties[iface][name] = property{get: get, set: set}
	return o
}

func (o *Object) ensure(iface string) {
	if _, ok := o.methods[iface]; !ok {
		o.methods[iface] = make(map[string]Method)
		o.properties[iface] = make(map[string]property)
	}
}

func (o *Object) ObjectID() string { return o.id }

func (o *Object) Interfaces() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.methods)+1)
	for iface := range o.methods {
		out = append(out, iface)
	}
	slices.Sort(out)
	return append(out, dynbind.BaseInterface)
}

func (o *Object) QueryInterface(iface string) (dynbind.Object, bool) {
	if iface == dynbind.BaseInterface {
		return o, true
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.methods[iface]
	if !ok {
		return nil, false
	}
	return o, true
}

func (o *Object) AddRef() {
	o.addRefs.Add(1)
	o.refs.Add(1)
}

func (o *Object) Release() {
	o.releases.Add(1)
	o.refs.Add(-1)
}

// Invoke dispatches to a method, or to a property getter (no arguments)
// or setter (one argument).
func (o *Object) Invoke(ctx context.Context, iface, member string, args []any) (any, error) {
	o.calls.Add(1)
	o.mu.RLock()
	fn, isMethod := o.methods[iface][member]
	prop, isProp := o.properties[iface][member]
	o.mu.RUnlock()

	switch {
	case isMethod:
		return fn(ctx, args)
	case isProp && len(args) == 0 && prop.get != nil:
		return prop.get(ctx)
	case isProp && len(args) == 1 && prop.set != nil:
		return nil, prop.set(ctx, args[0])
	}
	return nil, &errors.Fault{
		Name:    "UnsupportedOperation",
		Code:    errors.StatusUnsupported,
		Message: iface + "#" + member,
	}
}

// Refs returns the current reference count.
func (o *Object) Refs() int64 { return o.refs.Load() }

// AddRefs returns how many times AddRef was called.
func (o *Object) AddRefs() int64 { return o.addRefs.Load() }

// Releases returns how many times Release was called.
func (o *Object) Releases() int64 { return o.releases.Load() }

// Calls returns how many times Invoke was called.
func (o *Object) Calls() int64 { return o.calls.Load() }
