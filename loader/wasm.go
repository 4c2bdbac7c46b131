package loader

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/coerce"
)

// WasmExtension is the file extension searched for by WasmSource.
const WasmExtension = ".wasm"

// InstanceSymbol names the factory returning a wasm module's instance object.
func InstanceSymbol(module string) string {
	return module + ".instance"
}

// WasmInterface is the interface identity published for a wasm module's exports.
func WasmInterface(module string) string {
	return "wasm:" + module
}

// WasmSource opens core WebAssembly modules from search paths.
// Every exported function becomes a factory taking and returning scalars.
// Modules share one wazero runtime and compilation cache.
type WasmSource struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	paths   []string
}

// NewWasmSource creates a source searching paths in order.
func NewWasmSource(ctx context.Context, paths ...string) *WasmSource {
	cache := wazero.NewCompilationCache()
	cfg := wazero.NewRuntimeConfig().WithCompilationCache(cache)
	return &WasmSource{
		runtime: wazero.NewRuntimeWithConfig(ctx, cfg),
		cache:   cache,
		paths:   slices.Clone(paths),
	}
}

func (s *WasmSource) Name() string { return "wasm" }

// Paths returns the search paths.
func (s *WasmSource) Paths() []string {
	return slices.Clone(s.paths)
}

func (s *WasmSource) find(name string) (string, bool) {
	if name == "" || filepath.Base(name) != name {
		return "", false
	}
	for _, dir := range s.paths {
		p := filepath.Join(dir, name+WasmExtension)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// Open compiles and instantiates <path>/<name>.wasm.
func (s *WasmSource) Open(ctx context.Context, name string) (Module, error) {
	path, ok := s.find(name)
	if !ok {
		return nil, ErrNotFound
	}
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	compiled, err := s.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, err
	}
	instance, err := s.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}

	m := &wasmModule{
		name:     name,
		path:     path,
		compiled: compiled,
		instance: instance,
		exports:  make(map[string]*wasmExport),
	}
	for exportName, def := range compiled.ExportedFunctions() {
		m.exports[exportName] = &wasmExport{
			module:  m,
			name:    exportName,
			params:  def.ParamTypes(),
			results: def.ResultTypes(),
		}
	}
	m.object = &wasmObject{module: m}

	Logger().Debug("wasm module instantiated",
		zap.String("module", name),
		zap.String("path", path),
		zap.Int("exports", len(m.exports)))
	return m, nil
}

// Close releases the wazero runtime and its compilation cache.
func (s *WasmSource) Close(ctx context.Context) error {
	err := s.runtime.Close(ctx)
	if cerr := s.cache.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

type wasmModule struct {
	compiled wazero.CompiledModule
	instance api.Module
	exports  map[string]*wasmExport
	object   *wasmObject
	name     string
	path     string
	mu       sync.Mutex // guards calls into the instance
}

func (m *wasmModule) Name() string { return m.name }

func (m *wasmModule) Symbols() []string {
	out := make([]string, 0, len(m.exports)+1)
	for name := range m.exports {
		out = append(out, name)
	}
	slices.Sort(out)
	return append(out, InstanceSymbol(m.name))
}

func (m *wasmModule) Lookup(symbol string) (Factory, bool) {
	if symbol == InstanceSymbol(m.name) {
		// The instance is returned borrowed; whoever keeps it AddRefs.
		return NewFactory(symbol, func(context.Context, ...any) (any, error) {
			return m.object, nil
		}), true
	}
	e, ok := m.exports[symbol]
	if !ok {
		return nil, false
	}
	return e, true
}

// Interfaces describes the scalar exports as one interface.
func (m *wasmModule) Interfaces() []*catalog.InterfaceSignature {
	sig := &catalog.InterfaceSignature{ID: WasmInterface(m.name)}
	names := make([]string, 0, len(m.exports))
	for name := range m.exports {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		e := m.exports[name]
		ms, ok := e.signature()
		if !ok {
			continue
		}
		sig.Methods = append(sig.Methods, ms)
	}
	return []*catalog.InterfaceSignature{sig}
}

func (m *wasmModule) Close(ctx context.Context) error {
	err := m.instance.Close(ctx)
	if cerr := m.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

type wasmExport struct {
	module  *wasmModule
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func (e *wasmExport) Symbol() string { return e.name }

func (e *wasmExport) signature() (catalog.MethodSignature, bool) {
	if len(e.results) > 1 {
		return catalog.MethodSignature{}, false
	}
	ms := catalog.MethodSignature{Name: e.name, Result: catalog.VoidType(), Raises: true}
	for i, vt := range e.params {
		name, ok := witScalar(vt)
		if !ok {
			return catalog.MethodSignature{}, false
		}
		ms.Params = append(ms.Params, catalog.Param(paramName(i), catalog.Prim(name)))
	}
	if len(e.results) == 1 {
		name, ok := witScalar(e.results[0])
		if !ok {
			return catalog.MethodSignature{}, false
		}
		ms.Result = catalog.Prim(name)
	}
	return ms, true
}

// Call encodes args per the export's core value types and decodes results.
// A single result is returned as a scalar, several as []any.
func (e *wasmExport) Call(ctx context.Context, args ...any) (any, error) {
	iface := WasmInterface(e.module.name)
	if len(args) != len(e.params) {
		return nil, errors.Arity(iface, e.name, len(e.params), len(args))
	}

	stack := make([]uint64, len(args))
	for i, arg := range args {
		v, err := encodeValue(e.params[i], arg, []string{paramName(i)})
		if err != nil {
			if be, ok := err.(*errors.Error); ok {
				be.Interface, be.Member = iface, e.name
			}
			return nil, err
		}
		stack[i] = v
	}

	e.module.mu.Lock()
	fn := e.module.instance.ExportedFunction(e.name)
	var results []uint64
	var err error
	if fn == nil {
		err = errors.SymbolNotFound(e.name)
	} else {
		results, err = fn.Call(ctx, stack...)
	}
	e.module.mu.Unlock()
	if err != nil {
		return nil, errors.MapNative(iface, e.name, err)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return decodeValue(e.results[0], results[0]), nil
	default:
		out := make([]any, len(results))
		for i, r := range results {
			out[i] = decodeValue(e.results[i], r)
		}
		return out, nil
	}
}

func paramName(i int) string {
	return "arg" + strconv.Itoa(i)
}

func witScalar(vt api.ValueType) (string, bool) {
	switch vt {
	case api.ValueTypeI32:
		return "s32", true
	case api.ValueTypeI64:
		return "s64", true
	case api.ValueTypeF32:
		return "f32", true
	case api.ValueTypeF64:
		return "f64", true
	}
	return "", false
}

func encodeValue(vt api.ValueType, v any, path []string) (uint64, error) {
	switch vt {
	case api.ValueTypeI32:
		x, err := coerce.Integer[int32](v, "s32", path)
		return api.EncodeI32(x), err
	case api.ValueTypeI64:
		x, err := coerce.Integer[int64](v, "s64", path)
		return api.EncodeI64(x), err
	case api.ValueTypeF32:
		x, err := coerce.Float[float32](v, "f32", path)
		return api.EncodeF32(x), err
	case api.ValueTypeF64:
		x, err := coerce.Float[float64](v, "f64", path)
		return api.EncodeF64(x), err
	}
	return 0, errors.Unsupported(errors.PhaseMarshal, "wasm value type "+api.ValueTypeName(vt))
}

func decodeValue(vt api.ValueType, v uint64) any {
	switch vt {
	case api.ValueTypeI32:
		return api.DecodeI32(v)
	case api.ValueTypeI64:
		return int64(v)
	case api.ValueTypeF32:
		return api.DecodeF32(v)
	case api.ValueTypeF64:
		return api.DecodeF64(v)
	}
	return v
}

// wasmObject exposes a wasm instance through the generic object surface.
// The loader owns the instance; the reference count is informational.
type wasmObject struct {
	module *wasmModule
	refs   atomic.Int64
}

func (o *wasmObject) ObjectID() string { return WasmInterface(o.module.name) }

func (o *wasmObject) Interfaces() []string {
	return []string{WasmInterface(o.module.name), dynbind.BaseInterface}
}

func (o *wasmObject) QueryInterface(iface string) (dynbind.Object, bool) {
	if iface == WasmInterface(o.module.name) || iface == dynbind.BaseInterface {
		return o, true
	}
	return nil, false
}

func (o *wasmObject) AddRef() { o.refs.Add(1) }

func (o *wasmObject) Release() { o.refs.Add(-1) }

// Refs returns the number of references held by callers.
func (o *wasmObject) Refs() int64 { return o.refs.Load() }

func (o *wasmObject) Invoke(ctx context.Context, iface, member string, args []any) (any, error) {
	e, ok := o.module.exports[member]
	if !ok || iface != WasmInterface(o.module.name) {
		return nil, errors.NoSuchMethod(iface, member)
	}
	return e.Call(ctx, args...)
}
