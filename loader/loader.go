package loader

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
)

// Loader resolves modules by name and exposes their factory symbols.
// Loading is idempotent and concurrent first loads of one name collapse
// into a single load.
type Loader struct {
	publisher catalog.Publisher
	modules   map[string]*ModuleHandle
	group     singleflight.Group
	sources   []Source
	order     []*ModuleHandle
	mu        sync.RWMutex
}

// Option configures a Loader.
type Option func(*Loader)

// WithSources replaces the module sources. Sources are tried in order.
func WithSources(sources ...Source) Option {
	return func(l *Loader) {
		l.sources = sources
	}
}

// WithPublisher sets where module interface signatures are published.
func WithPublisher(p catalog.Publisher) Option {
	return func(l *Loader) {
		l.publisher = p
	}
}

// New creates a loader. Without options it opens registered in-process
// modules and publishes to catalog.DefaultRegistry.
func New(opts ...Option) *Loader {
	l := &Loader{
		modules:   make(map[string]*ModuleHandle),
		sources:   []Source{RegistrySource{}},
		publisher: catalog.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var (
	defaultLoader     *Loader
	defaultLoaderOnce sync.Once
)

// Default returns the process-wide loader over registered modules.
func Default() *Loader {
	defaultLoaderOnce.Do(func() {
		defaultLoader = New()
	})
	return defaultLoader
}

// Load loads name and its dependencies. Loading a module that is already
// loaded is a no-op returning the existing handle.
func (l *Loader) Load(ctx context.Context, name string) (*ModuleHandle, error) {
	if h, ok := l.loaded(name); ok {
		return h, nil
	}

	v, err, _ := l.group.Do(name, func() (any, error) {
		if h, ok := l.loaded(name); ok {
			return h, nil
		}
		return l.load(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ModuleHandle), nil
}

type opened struct {
	module Module
	source string
}

func (l *Loader) load(ctx context.Context, name string) (*ModuleHandle, error) {
	pending := make(map[string]opened)
	requires := make(map[string][]string)
	var discovered []string

	closeAll := func() {
		for _, o := range pending {
			closeModule(ctx, o.module)
		}
	}

	queue := []string{name}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := pending[next]; ok {
			continue
		}
		if _, ok := l.loaded(next); ok {
			continue
		}

		m, source, err := l.open(ctx, next)
		if err != nil {
			closeAll()
			if next != name {
				return nil, errors.ModuleLoad(name, fmt.Errorf("dependency %s: %w", next, err))
			}
			return nil, errors.ModuleLoad(name, err)
		}
		pending[next] = opened{module: m, source: source}
		discovered = append(discovered, next)

		if r, ok := m.(Requirer); ok {
			requires[next] = r.Requires()
			queue = append(queue, r.Requires()...)
		}
	}

	order, err := dependencyOrder(discovered, requires)
	if err != nil {
		closeAll()
		return nil, errors.ModuleLoad(name, err)
	}

	for i, modName := range order {
		o := pending[modName]
		if err := l.register(modName, o); err != nil {
			for _, rest := range order[i:] {
				closeModule(ctx, pending[rest].module)
			}
			return nil, errors.ModuleLoad(modName, err)
		}
	}

	h, _ := l.loaded(name)
	return h, nil
}

func (l *Loader) open(ctx context.Context, name string) (Module, string, error) {
	for _, src := range l.sources {
		m, err := src.Open(ctx, name)
		if stderrors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("%s source: %w", src.Name(), err)
		}
		return m, src.Name(), nil
	}
	return nil, "", ErrNotFound
}

func (l *Loader) register(name string, o opened) error {
	if ip, ok := o.module.(InterfaceProvider); ok && l.publisher != nil {
		if err := l.publisher.Publish(ip.Interfaces()...); err != nil {
			return err
		}
	}

	l.mu.Lock()
	if _, dup := l.modules[name]; dup {
		// Loaded concurrently as a dependency of another module.
		l.mu.Unlock()
		closeModule(context.Background(), o.module)
		return nil
	}
	h := &ModuleHandle{
		Name:   name,
		Source: o.source,
		Module: o.module,
		Order:  len(l.order),
	}
	l.modules[name] = h
	l.order = append(l.order, h)
	l.mu.Unlock()

	var deps []string
	if r, ok := o.module.(Requirer); ok {
		deps = r.Requires()
	}
	Logger().Info("module loaded",
		zap.String("module", name),
		zap.String("source", o.source),
		zap.Strings("requires", deps),
		zap.Int("symbols", len(o.module.Symbols())))
	return nil
}

func (l *Loader) loaded(name string) (*ModuleHandle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.modules[name]
	return h, ok
}

// Loaded returns the loaded modules in load order.
func (l *Loader) Loaded() []*ModuleHandle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.order)
}

// Fetch resolves symbol from the loaded modules, searching in load order.
func (l *Loader) Fetch(symbol string) (Factory, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.order {
		if f, ok := h.Module.Lookup(symbol); ok {
			return f, nil
		}
	}
	return nil, errors.SymbolNotFound(symbol)
}

// Close closes loaded modules in reverse load order and then the sources.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	order := l.order
	l.order = nil
	l.modules = make(map[string]*ModuleHandle)
	l.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		if c, ok := order[i].Module.(Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("module %s: %w", order[i].Name, err))
			}
		}
	}
	for _, src := range l.sources {
		if c, ok := src.(Closer); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}

func closeModule(ctx context.Context, m Module) {
	if c, ok := m.(Closer); ok {
		if err := c.Close(ctx); err != nil {
			Logger().Warn("module close failed", zap.String("module", m.Name()), zap.Error(err))
		}
	}
}
