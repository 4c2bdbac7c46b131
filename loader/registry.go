package loader

import (
	"context"
	stderrors "errors"
	"slices"
	"sync"
)

// ErrNotFound is returned by a Source that does not provide a module.
var ErrNotFound = stderrors.New("module not found")

// Opener instantiates a registered in-process module.
type Opener func(ctx context.Context) (Module, error)

var (
	openersMu sync.RWMutex
	openers   = make(map[string]Opener)
)

// Register makes an in-process module available under name.
// It is meant to be called from init and panics on duplicates.
func Register(name string, open Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	if open == nil {
		panic("loader: Register opener is nil")
	}
	if _, dup := openers[name]; dup {
		panic("loader: Register called twice for module " + name)
	}
	openers[name] = open
}

// Registered returns the names of registered in-process modules.
func Registered() []string {
	openersMu.RLock()
	defer openersMu.RUnlock()
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Source locates and opens modules by name.
type Source interface {
	Name() string
	Open(ctx context.Context, name string) (Module, error)
}

// RegistrySource opens modules added with Register.
type RegistrySource struct{}

func (RegistrySource) Name() string { return "registry" }

func (RegistrySource) Open(ctx context.Context, name string) (Module, error) {
	openersMu.RLock()
	open, ok := openers[name]
	openersMu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return open(ctx)
}
