package proxy

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/callback"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/refcount"
)

// Binder wraps native objects into proxies and adapts host objects into
// callback trampolines. It owns no native references itself; every
// reference it takes is recorded in the ledger.
type Binder struct {
	catalog *catalog.Catalog
	ledger  *refcount.Ledger
	adapter *callback.Adapter
}

type options struct {
	diagnostics callback.Diagnostics
}

// Option configures a Binder.
type Option func(*options)

// WithDiagnostics sets the sink for host exceptions raised in callbacks.
func WithDiagnostics(d callback.Diagnostics) Option {
	return func(o *options) {
		o.diagnostics = d
	}
}

// NewBinder creates a binder describing interfaces through c and
// recording references in l.
func NewBinder(c *catalog.Catalog, l *refcount.Ledger, opts ...Option) *Binder {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	b := &Binder{catalog: c, ledger: l}
	adapterOpts := []callback.Option{callback.WithInbound(b)}
	if o.diagnostics != nil {
		adapterOpts = append(adapterOpts, callback.WithDiagnostics(o.diagnostics))
	}
	b.adapter = callback.NewAdapter(c, adapterOpts...)
	return b
}

// Catalog returns the descriptor catalog.
func (b *Binder) Catalog() *catalog.Catalog { return b.catalog }

// Ledger returns the reference ledger.
func (b *Binder) Ledger() *refcount.Ledger { return b.ledger }

// Wrap returns a proxy viewing obj as iface. It acquires exactly one native
// reference, released once by Close or when the proxy becomes unreachable.
func (b *Binder) Wrap(ctx context.Context, obj dynbind.Object, iface string) (*Proxy, error) {
	if obj == nil {
		return nil, errors.TypeMismatch(errors.PhaseHost, nil, "nil", iface)
	}
	d, err := b.catalog.Describe(ctx, iface)
	if err != nil {
		return nil, err
	}
	view, ok := obj.QueryInterface(d.ID)
	if !ok {
		return nil, errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			On(d.ID, "").
			Detail("object %s does not implement %s", obj.ObjectID(), d.ID).
			Build()
	}

	p := &Proxy{binder: b, desc: d, obj: view, id: view.ObjectID()}
	ref, err := refcount.Own(b.ledger, p, view, d.ID)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindReleased, err, "cannot acquire "+d.ID)
	}
	p.ref = ref
	Logger().Debug("proxy created",
		zap.String("interface", d.ID),
		zap.String("object", p.id),
		zap.Uint32("handle", uint32(ref.Handle())))
	return p, nil
}

// Adapt turns host into a native implementation of callback interface
// iface. The returned trampoline carries one reference owned by the caller.
// Passing a host object directly as a callback argument adapts it for the
// duration of that call instead.
func (b *Binder) Adapt(ctx context.Context, host any, iface string) (*callback.Trampoline, error) {
	return b.adapter.Adapt(ctx, host, iface)
}
