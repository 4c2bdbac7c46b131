package runtime

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/callback"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/coerce"
	"github.com/wippyai/dynbind/loader"
	"github.com/wippyai/dynbind/proxy"
	"github.com/wippyai/dynbind/refcount"
)

type Runtime struct {
	loader  *loader.Loader
	catalog *catalog.Catalog
	ledger  *refcount.Ledger
	binder  *proxy.Binder
	// ownsLoader is set when the loader is private to this runtime.
	ownsLoader bool
}

func New(ctx context.Context) (*Runtime, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates a runtime. Without search paths it shares the
// process-wide loader, so modules loaded by one runtime are visible to all.
func NewWithConfig(ctx context.Context, cfg *Config) (*Runtime, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger != nil {
		SetLogger(cfg.Logger)
	}

	r := &Runtime{ledger: refcount.NewLedger()}

	if len(cfg.SearchPaths) > 0 {
		wasm := loader.NewWasmSource(ctx, cfg.SearchPaths...)
		r.loader = loader.New(loader.WithSources(loader.RegistrySource{}, wasm))
		r.ownsLoader = true
	} else {
		r.loader = loader.Default()
	}

	if cfg.Reflector != nil {
		r.catalog = catalog.New(cfg.Reflector)
	} else {
		r.catalog = catalog.Default()
	}

	var opts []proxy.Option
	if cfg.Diagnostics != nil {
		opts = append(opts, proxy.WithDiagnostics(cfg.Diagnostics))
	}
	r.binder = proxy.NewBinder(r.catalog, r.ledger, opts...)
	return r, nil
}

// Close releases every native reference still held by proxies of this
// runtime. Proxies used after Close fail with a released error.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if live := r.ledger.Len(); live > 0 {
		refcount.Logger().Debug("releasing outstanding references", zap.Int("live", live))
	}
	if err := r.ledger.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.ownsLoader {
		if err := r.loader.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// LoadModule loads a module and its dependencies. Loading a module twice
// is a no-op.
func (r *Runtime) LoadModule(ctx context.Context, name string) (*loader.ModuleHandle, error) {
	return r.loader.Load(ctx, name)
}

// FetchFactory resolves a factory symbol across loaded modules.
func (r *Runtime) FetchFactory(symbol string) (loader.Factory, error) {
	return r.loader.Fetch(symbol)
}

// Fetch calls a zero-argument factory and wraps its result as iface.
func (r *Runtime) Fetch(ctx context.Context, symbol, iface string) (*proxy.Proxy, error) {
	v, err := r.Call(ctx, symbol, iface)
	if err != nil {
		return nil, err
	}
	p, ok := v.(*proxy.Proxy)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseLoad, []string{symbol}, coerce.TypeName(v), iface)
	}
	return p, nil
}

// Call calls a factory with arguments. An object result is wrapped as
// iface; any other result is returned unchanged. Proxy arguments are
// passed as their native objects.
func (r *Runtime) Call(ctx context.Context, symbol, iface string, args ...any) (any, error) {
	f, err := r.loader.Fetch(symbol)
	if err != nil {
		return nil, err
	}

	native := make([]any, len(args))
	for i, a := range args {
		if p, ok := a.(*proxy.Proxy); ok {
			obj := p.Object()
			if obj == nil {
				return nil, errors.Released(p.Interface())
			}
			native[i] = obj
			continue
		}
		native[i] = a
	}

	v, err := f.Call(ctx, native...)
	if err != nil {
		return nil, errors.MapNative("", symbol, err)
	}
	obj, ok := v.(dynbind.Object)
	if !ok {
		return v, nil
	}
	if iface == "" {
		return nil, errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			On("", symbol).
			GoType("object").
			Detail("factory returned object %s but no interface was requested", obj.ObjectID()).
			Build()
	}
	return r.binder.Wrap(ctx, obj, iface)
}

// Describe returns the descriptor of an interface.
func (r *Runtime) Describe(ctx context.Context, iface string) (*catalog.InterfaceDescriptor, error) {
	return r.catalog.Describe(ctx, iface)
}

// Wrap views a native object as iface.
func (r *Runtime) Wrap(ctx context.Context, obj dynbind.Object, iface string) (*proxy.Proxy, error) {
	return r.binder.Wrap(ctx, obj, iface)
}

// Adapt turns a host object into a native callback implementation.
func (r *Runtime) Adapt(ctx context.Context, host any, iface string) (*callback.Trampoline, error) {
	return r.binder.Adapt(ctx, host, iface)
}

// NewWait creates a completion primitive for asynchronous native work.
func (r *Runtime) NewWait() *callback.Wait {
	return callback.NewWait()
}

// Live returns the number of native references held by this runtime.
func (r *Runtime) Live() int {
	return r.ledger.Len()
}

// Observe subscribes o to reference acquire and release events.
func (r *Runtime) Observe(o refcount.Observer) {
	r.ledger.Subscribe(o)
}

// Loader returns the module loader.
func (r *Runtime) Loader() *loader.Loader {
	return r.loader
}

// Catalog returns the descriptor catalog.
func (r *Runtime) Catalog() *catalog.Catalog {
	return r.catalog
}
