package proxy

import (
	"context"
	"runtime"

	"go.uber.org/zap"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/refcount"
)

// Proxy stands in for one native object under one interface view.
// Member lookup, arity and argument types are checked against the cached
// descriptor before any native call is made.
type Proxy struct {
	binder *Binder
	desc   *catalog.InterfaceDescriptor
	obj    dynbind.Object
	ref    *refcount.Owned
	id     string
}

// Interface returns the interface identity of this view.
func (p *Proxy) Interface() string { return p.desc.ID }

// Describe returns the descriptor driving dispatch.
func (p *Proxy) Describe() *catalog.InterfaceDescriptor { return p.desc }

// ObjectID returns the native identity of the underlying object.
func (p *Proxy) ObjectID() string { return p.id }

// Object returns the native view, or nil once the proxy is closed.
func (p *Proxy) Object() dynbind.Object {
	if p.ref.Released() {
		return nil
	}
	return p.obj
}

// Closed reports whether the native reference has been released.
func (p *Proxy) Closed() bool { return p.ref.Released() }

// Close releases the native reference. Only the first call has an effect.
func (p *Proxy) Close() error {
	p.ref.Release()
	return nil
}

// SameObject reports whether p and other denote the same native entity,
// by the native side's own identity.
func (p *Proxy) SameObject(other *Proxy) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.id == other.id
}

func (p *Proxy) String() string {
	return p.desc.ID + "(" + p.id + ")"
}

// QueryInterface returns a new proxy viewing the same object as iface.
func (p *Proxy) QueryInterface(ctx context.Context, iface string) (*Proxy, error) {
	if p.Closed() {
		return nil, errors.Released(p.desc.ID)
	}
	return p.binder.Wrap(ctx, p.obj, iface)
}

// Get reads a property.
func (p *Proxy) Get(ctx context.Context, name string) (any, error) {
	prop, ok := p.desc.Property(name)
	if !ok {
		return nil, errors.NoSuchProperty(p.desc.ID, name)
	}
	if !prop.Readable {
		return nil, errors.NotReadable(p.desc.ID, name)
	}
	raw, err := p.call(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	v, err := p.binder.toHost(ctx, raw, prop.Type, []string{name})
	return v, annotate(err, p.desc.ID, name)
}

// Set writes a property.
func (p *Proxy) Set(ctx context.Context, name string, value any) error {
	prop, ok := p.desc.Property(name)
	if !ok {
		return errors.NoSuchProperty(p.desc.ID, name)
	}
	if !prop.Writable {
		return errors.NotWritable(p.desc.ID, name)
	}
	if p.Closed() {
		return errors.Released(p.desc.ID)
	}

	frame := p.binder.ledger.Frame(p.desc.ID + "#" + name)
	defer p.closeFrame(frame, name)

	nv, err := p.binder.toNative(ctx, frame, value, prop.Type, []string{name})
	if err != nil {
		return annotate(err, p.desc.ID, name)
	}
	_, err = p.call(ctx, name, []any{nv})
	return err
}

// Invoke calls a method with positional arguments.
func (p *Proxy) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	m, ok := p.desc.Method(name)
	if !ok {
		return nil, errors.NoSuchMethod(p.desc.ID, name)
	}
	if len(args) != m.Arity() {
		return nil, errors.Arity(p.desc.ID, name, m.Arity(), len(args))
	}
	if p.Closed() {
		return nil, errors.Released(p.desc.ID)
	}

	frame := p.binder.ledger.Frame(p.desc.ID + "#" + name)
	defer p.closeFrame(frame, name)

	native := make([]any, len(args))
	for i, arg := range args {
		v, err := p.binder.toNative(ctx, frame, arg, m.Params[i].Type, []string{m.Params[i].Name})
		if err != nil {
			return nil, annotate(err, p.desc.ID, name)
		}
		native[i] = v
	}

	raw, err := p.call(ctx, name, native)
	if err != nil {
		return nil, err
	}
	v, err := p.binder.toHost(ctx, raw, m.Result, []string{"result"})
	return v, annotate(err, p.desc.ID, name)
}

// call issues one native invocation and maps its failure.
func (p *Proxy) call(ctx context.Context, member string, args []any) (any, error) {
	if p.Closed() {
		return nil, errors.Released(p.desc.ID)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := p.obj.Invoke(ctx, p.desc.ID, member, args)
	// The reference must outlive the native call.
	runtime.KeepAlive(p)
	if err != nil {
		mapped := errors.MapNative(p.desc.ID, member, err)
		Logger().Debug("native call failed",
			zap.String("interface", p.desc.ID),
			zap.String("member", member),
			zap.Error(mapped))
		return nil, mapped
	}
	return raw, nil
}

func (p *Proxy) closeFrame(f *refcount.Frame, member string) {
	if err := f.Close(); err != nil {
		Logger().Warn("releasing call arguments failed",
			zap.String("interface", p.desc.ID),
			zap.String("member", member),
			zap.Error(err))
	}
}

func annotate(err error, iface, member string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*errors.Error); ok && e.Interface == "" {
		e.Interface, e.Member = iface, member
	}
	return err
}
