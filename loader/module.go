package loader

import (
	"context"
	"slices"

	"github.com/wippyai/dynbind/catalog"
)

// Factory is an exported entry point of a loaded module.
type Factory interface {
	Symbol() string
	Call(ctx context.Context, args ...any) (any, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, args ...any) (any, error)

type namedFactory struct {
	fn     FactoryFunc
	symbol string
}

func (f *namedFactory) Symbol() string { return f.symbol }

func (f *namedFactory) Call(ctx context.Context, args ...any) (any, error) {
	return f.fn(ctx, args...)
}

// NewFactory names fn as symbol.
func NewFactory(symbol string, fn FactoryFunc) Factory {
	return &namedFactory{symbol: symbol, fn: fn}
}

// Module is a unit of compiled interfaces exporting factory symbols.
type Module interface {
	Name() string
	Symbols() []string
	Lookup(symbol string) (Factory, bool)
}

// Requirer is implemented by modules that depend on other modules.
// Dependencies are loaded first.
type Requirer interface {
	Requires() []string
}

// InterfaceProvider is implemented by modules that describe the interfaces
// they implement. Signatures are published to the loader's catalog.Publisher.
type InterfaceProvider interface {
	Interfaces() []*catalog.InterfaceSignature
}

// Closer is implemented by modules holding resources.
type Closer interface {
	Close(ctx context.Context) error
}

// Static is an in-process module assembled from Go functions.
type Static struct {
	Factories  map[string]FactoryFunc
	ModuleName string
	Deps       []string
	Signatures []*catalog.InterfaceSignature
}

func (s *Static) Name() string { return s.ModuleName }

func (s *Static) Symbols() []string {
	out := make([]string, 0, len(s.Factories))
	for sym := range s.Factories {
		out = append(out, sym)
	}
	slices.Sort(out)
	return out
}

func (s *Static) Lookup(symbol string) (Factory, bool) {
	fn, ok := s.Factories[symbol]
	if !ok {
		return nil, false
	}
	return NewFactory(symbol, fn), true
}

func (s *Static) Requires() []string { return s.Deps }

func (s *Static) Interfaces() []*catalog.InterfaceSignature { return s.Signatures }

// ModuleHandle records a loaded module.
type ModuleHandle struct {
	Module Module
	Name   string
	Source string
	Order  int
}
