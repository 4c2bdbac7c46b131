package catalog

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/dynbind/errors"
)

// Reflector is the reflection service consulted on a cache miss.
type Reflector interface {
	Reflect(ctx context.Context, id string) (*InterfaceSignature, error)
}

// ReflectorFunc adapts a function to Reflector.
type ReflectorFunc func(ctx context.Context, id string) (*InterfaceSignature, error)

func (f ReflectorFunc) Reflect(ctx context.Context, id string) (*InterfaceSignature, error) {
	return f(ctx, id)
}

// Stats counts catalog traffic.
type Stats struct {
	Reflections uint64 // reflection service round-trips
	Hits        uint64 // lookups served from the cache
}

// Catalog caches interface descriptors for the lifetime of the process.
// Entries are never invalidated. Concurrent first requests for one identity
// share a single reflection round-trip; the first stored descriptor wins.
type Catalog struct {
	reflector   Reflector
	cache       sync.Map // id -> *InterfaceDescriptor
	group       singleflight.Group
	reflections atomic.Uint64
	hits        atomic.Uint64
}

// New creates a catalog backed by r.
func New(r Reflector) *Catalog {
	return &Catalog{reflector: r}
}

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// Default returns the process-wide catalog over DefaultRegistry.
func Default() *Catalog {
	defaultCatalogOnce.Do(func() {
		defaultCatalog = New(DefaultRegistry())
	})
	return defaultCatalog
}

// Describe returns the descriptor of interface id.
func (c *Catalog) Describe(ctx context.Context, id string) (*InterfaceDescriptor, error) {
	if d, ok := c.cache.Load(id); ok {
		c.hits.Add(1)
		return d.(*InterfaceDescriptor), nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		if d, ok := c.cache.Load(id); ok {
			return d, nil
		}
		c.reflections.Add(1)
		sig, err := c.reflector.Reflect(ctx, id)
		if err != nil {
			if _, ok := err.(*errors.Error); ok {
				return nil, err
			}
			return nil, errors.New(errors.PhaseReflect, errors.KindInvalidDescriptor).
				On(id, "").
				Detail("reflection failed").
				Cause(err).
				Build()
		}
		if sig != nil && sig.ID != id {
			return nil, errors.InvalidDescriptor(id, "", "reflection returned interface "+sig.ID)
		}
		d, err := Build(sig)
		if err != nil {
			return nil, err
		}
		actual, _ := c.cache.LoadOrStore(id, d)
		Logger().Debug("interface described",
			zap.String("interface", id),
			zap.Int("methods", len(d.Methods)),
			zap.Int("properties", len(d.Properties)),
			zap.Bool("enumerator", d.IsEnumerator()))
		return actual, nil
	})
	if err != nil {
		Logger().Debug("describe failed", zap.String("interface", id), zap.Error(err))
		return nil, err
	}
	return v.(*InterfaceDescriptor), nil
}

// Cached reports whether id has already been described.
func (c *Catalog) Cached(id string) bool {
	_, ok := c.cache.Load(id)
	return ok
}

// Stats returns reflection and cache hit counters.
func (c *Catalog) Stats() Stats {
	return Stats{
		Reflections: c.reflections.Load(),
		Hits:        c.hits.Load(),
	}
}
