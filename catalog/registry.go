package catalog

import (
	"context"
	"reflect"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/dynbind/errors"
)

// Publisher accepts interface signatures from loaded modules.
type Publisher interface {
	Publish(sigs ...*InterfaceSignature) error
}

// Registry is an in-process reflection service. Modules publish the
// signatures of the interfaces they implement; Reflect serves them.
type Registry struct {
	sigs map[string]*InterfaceSignature
	mu   sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sigs: make(map[string]*InterfaceSignature)}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Publish registers signatures. Re-publishing an identical signature is a
// no-op; a different shape under a known identity is rejected, since
// interface shapes are fixed for the process lifetime. The batch is
// published whole or not at all.
func (r *Registry) Publish(sigs ...*InterfaceSignature) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make(map[string]*InterfaceSignature, len(sigs))
	order := make([]string, 0, len(sigs))
	for _, sig := range sigs {
		if sig == nil || sig.ID == "" {
			return errors.InvalidDescriptor("", "", "cannot publish a signature without identity")
		}
		prev, ok := r.sigs[sig.ID]
		if !ok {
			prev, ok = pending[sig.ID]
		}
		if ok {
			if !reflect.DeepEqual(prev, sig) {
				return errors.InvalidDescriptor(sig.ID, "", "interface already published with a different shape")
			}
			continue
		}
		pending[sig.ID] = sig
		order = append(order, sig.ID)
	}

	for _, id := range order {
		r.sigs[id] = pending[id]
		Logger().Debug("interface published", zap.String("interface", id))
	}
	return nil
}

// Reflect implements Reflector.
func (r *Registry) Reflect(_ context.Context, id string) (*InterfaceSignature, error) {
	r.mu.RLock()
	sig, ok := r.sigs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.InvalidDescriptor(id, "", "interface not published")
	}
	return sig, nil
}

// IDs returns the published interface identities in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sigs))
	for id := range r.sigs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
