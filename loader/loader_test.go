package loader

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
)

// addWASM is a minimal core module exporting add(i32, i32) -> i32.
var addWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	// Type section: (i32, i32) -> i32
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	// Function section: func 0 uses type 0
	0x03, 0x02, 0x01, 0x00,
	// Export section: "add" -> func 0
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	// Code section: local.get 0 + local.get 1 = i32.add
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

// mapSource serves Static modules from a map and counts opens.
type mapSource struct {
	modules map[string]*Static
	opens   sync.Map // name -> *atomic.Int64
}

func (s *mapSource) Name() string { return "map" }

func (s *mapSource) Open(_ context.Context, name string) (Module, error) {
	m, ok := s.modules[name]
	if !ok {
		return nil, ErrNotFound
	}
	c, _ := s.opens.LoadOrStore(name, new(atomic.Int64))
	c.(*atomic.Int64).Add(1)
	return m, nil
}

func (s *mapSource) openCount(name string) int64 {
	c, ok := s.opens.Load(name)
	if !ok {
		return 0
	}
	return c.(*atomic.Int64).Load()
}

func constFactory(v any) FactoryFunc {
	return func(context.Context, ...any) (any, error) { return v, nil }
}

func newTestSource() *mapSource {
	return &mapSource{modules: map[string]*Static{
		"base": {
			ModuleName: "base",
			Factories:  map[string]FactoryFunc{"CreateBase": constFactory("base"), "Shared": constFactory("from-base")},
			Signatures: []*catalog.InterfaceSignature{{ID: "base:thing"}},
		},
		"mid": {
			ModuleName: "mid",
			Deps:       []string{"base"},
			Factories:  map[string]FactoryFunc{"CreateMid": constFactory("mid"), "Shared": constFactory("from-mid")},
		},
		"top": {
			ModuleName: "top",
			Deps:       []string{"mid", "base"},
			Factories:  map[string]FactoryFunc{"CreateTop": constFactory("top")},
		},
		"cycle-a": {ModuleName: "cycle-a", Deps: []string{"cycle-b"}},
		"cycle-b": {ModuleName: "cycle-b", Deps: []string{"cycle-a"}},
		"self":    {ModuleName: "self", Deps: []string{"self"}},
		"broken":  {ModuleName: "broken", Deps: []string{"missing"}},
	}}
}

func TestLoader_LoadDependencies(t *testing.T) {
	src := newTestSource()
	reg := catalog.NewRegistry()
	l := New(WithSources(src), WithPublisher(reg))
	ctx := context.Background()

	h, err := l.Load(ctx, "top")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if h.Name != "top" || h.Source != "map" {
		t.Errorf("unexpected handle %+v", h)
	}

	var order []string
	for _, m := range l.Loaded() {
		order = append(order, m.Name)
	}
	if diff := cmp.Diff([]string{"base", "mid", "top"}, order); diff != "" {
		t.Errorf("load order mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"base:thing"}, reg.IDs()); diff != "" {
		t.Errorf("published interfaces mismatch:\n%s", diff)
	}
}

func TestLoader_Idempotent(t *testing.T) {
	src := newTestSource()
	l := New(WithSources(src), WithPublisher(catalog.NewRegistry()))
	ctx := context.Background()

	first, err := l.Load(ctx, "mid")
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.Load(ctx, "mid")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("repeated Load should return the same handle")
	}
	if _, err := l.Load(ctx, "top"); err != nil {
		t.Fatal(err)
	}
	if n := src.openCount("base"); n != 1 {
		t.Errorf("base opened %d times, want 1", n)
	}
	if n := len(l.Loaded()); n != 3 {
		t.Errorf("loaded %d modules, want 3", n)
	}
}

func TestLoader_ConcurrentLoad(t *testing.T) {
	src := newTestSource()
	l := New(WithSources(src), WithPublisher(catalog.NewRegistry()))

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Load(context.Background(), "base"); err != nil {
				t.Errorf("Load failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := len(l.Loaded()); n != 1 {
		t.Errorf("loaded %d modules, want 1", n)
	}
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name   string
		module string
	}{
		{"not found", "nowhere"},
		{"cycle", "cycle-a"},
		{"self dependency", "self"},
		{"missing dependency", "broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(WithSources(newTestSource()), WithPublisher(catalog.NewRegistry()))
			_, err := l.Load(context.Background(), tt.module)
			if !stderrors.Is(err, errors.ErrModuleLoad) {
				t.Fatalf("expected ModuleLoad error, got %v", err)
			}
			if len(l.Loaded()) != 0 {
				t.Errorf("failed load left %d modules registered", len(l.Loaded()))
			}
		})
	}
}

func TestLoader_Fetch(t *testing.T) {
	l := New(WithSources(newTestSource()), WithPublisher(catalog.NewRegistry()))
	ctx := context.Background()

	if _, err := l.Fetch("CreateBase"); !stderrors.Is(err, errors.ErrSymbolNotFound) {
		t.Fatalf("Fetch before Load should fail with SymbolNotFound, got %v", err)
	}

	if _, err := l.Load(ctx, "top"); err != nil {
		t.Fatal(err)
	}

	f, err := l.Fetch("CreateTop")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if f.Symbol() != "CreateTop" {
		t.Errorf("Symbol = %q", f.Symbol())
	}
	v, err := f.Call(ctx)
	if err != nil || v != "top" {
		t.Errorf("Call = %v, %v", v, err)
	}

	shared, _ := l.Fetch("Shared")
	v, _ = shared.Call(ctx)
	if v != "from-base" {
		t.Errorf("Fetch should search in load order, got %v", v)
	}

	if _, err := l.Fetch("CreateNothing"); !stderrors.Is(err, errors.ErrSymbolNotFound) {
		t.Errorf("expected SymbolNotFound, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	Register("loader-test-module", func(context.Context) (Module, error) {
		return &Static{ModuleName: "loader-test-module", Factories: map[string]FactoryFunc{"Hello": constFactory("hi")}}, nil
	})

	found := false
	for _, name := range Registered() {
		if name == "loader-test-module" {
			found = true
		}
	}
	if !found {
		t.Fatal("registered module not listed")
	}

	l := New(WithPublisher(catalog.NewRegistry()))
	if _, err := l.Load(context.Background(), "loader-test-module"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := l.Fetch("Hello"); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("duplicate Register should panic")
		}
	}()
	Register("loader-test-module", func(context.Context) (Module, error) { return nil, nil })
}

func TestWasmSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "math"+WasmExtension), addWASM, 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	reg := catalog.NewRegistry()
	l := New(WithSources(RegistrySource{}, NewWasmSource(ctx, dir)), WithPublisher(reg))
	defer l.Close(ctx)

	h, err := l.Load(ctx, "math")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if h.Source != "wasm" {
		t.Errorf("Source = %q, want wasm", h.Source)
	}

	add, err := l.Fetch("add")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	got, err := add.Call(ctx, 40, int8(2))
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if got != int32(42) {
		t.Errorf("add(40, 2) = %v (%T), want int32(42)", got, got)
	}

	if _, err := add.Call(ctx, 1); !stderrors.Is(err, errors.ErrArity) {
		t.Errorf("expected arity error, got %v", err)
	}
	if _, err := add.Call(ctx, 1, int64(1)<<40); !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Errorf("expected overflow, got %v", err)
	}

	d, err := catalog.New(reg).Describe(ctx, WasmInterface("math"))
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	m, ok := d.Method("add")
	if !ok || m.Arity() != 2 || catalog.WITName(m.Result.WIT) != "s32" {
		t.Errorf("unexpected descriptor for add: %+v", m)
	}

	inst, err := l.Fetch(InstanceSymbol("math"))
	if err != nil {
		t.Fatal(err)
	}
	objAny, err := inst.Call(ctx)
	if err != nil {
		t.Fatal(err)
	}
	obj := objAny.(*wasmObject)
	if _, err := inst.Call(ctx); err != nil {
		t.Fatal(err)
	}
	if obj.Refs() != 0 {
		t.Errorf("instance factory returned an owned reference, refs = %d", obj.Refs())
	}
	v, err := obj.Invoke(ctx, WasmInterface("math"), "add", []any{int32(2), int32(3)})
	if err != nil || v != int32(5) {
		t.Errorf("Invoke add = %v, %v", v, err)
	}
}

func TestWasmSource_NotFound(t *testing.T) {
	ctx := context.Background()
	src := NewWasmSource(ctx, t.TempDir())
	defer src.Close(ctx)

	for _, name := range []string{"absent", "../escape", ""} {
		if _, err := src.Open(ctx, name); !stderrors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) = %v, want ErrNotFound", name, err)
		}
	}
}
