package callback

import (
	"context"
	"reflect"
	"strconv"
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
)

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()

// Inbound converts values crossing from native code into host code and
// back. The proxy layer implements it, so native object arguments reach
// host methods as proxies.
type Inbound interface {
	ToHost(ctx context.Context, v any, tag catalog.TypeTag) (any, error)
	ToNative(ctx context.Context, v any, tag catalog.TypeTag, path []string) (any, error)
	// Discard releases whatever ToHost created for v when the call it was
	// converted for never reaches the host.
	Discard(v any)
}

// Diagnostic describes a failure raised by host code during a callback.
// It is never returned to native code.
type Diagnostic struct {
	Err       error
	Interface string
	Member    string
	GoType    string
	Goroutine int64
	// Foreign is set when the invocation ran on a goroutine other than
	// the one that adapted the host object.
	Foreign bool
}

// Diagnostics receives host exceptions swallowed by trampolines.
type Diagnostics interface {
	HostException(Diagnostic)
}

// DiagnosticsFunc adapts a function to Diagnostics.
type DiagnosticsFunc func(Diagnostic)

func (f DiagnosticsFunc) HostException(d Diagnostic) { f(d) }

// Adapter turns host objects into native callback implementations.
type Adapter struct {
	catalog     *catalog.Catalog
	inbound     Inbound
	diagnostics Diagnostics
	seq         atomic.Uint64
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithInbound sets the marshaler used for callback arguments and results.
func WithInbound(in Inbound) Option {
	return func(a *Adapter) {
		a.inbound = in
	}
}

// WithDiagnostics sets the sink for swallowed host exceptions.
func WithDiagnostics(d Diagnostics) Option {
	return func(a *Adapter) {
		a.diagnostics = d
	}
}

// NewAdapter creates an adapter resolving callback interfaces through c.
func NewAdapter(c *catalog.Catalog, opts ...Option) *Adapter {
	a := &Adapter{catalog: c}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Adapt checks that host exposes every required member of interface iface
// and returns a trampoline holding one reference owned by the caller.
//
// A native member "done" is served by the host method Done, or by the
// interface-qualified ProgressObserverDone for "cis:progress-observer".
// Readable properties need a getter (Name or GetName), writable ones a
// setter (SetName). A method may take a leading context.Context and may
// return a trailing error, which is treated as a host exception.
func (a *Adapter) Adapt(ctx context.Context, host any, iface string) (*Trampoline, error) {
	if host == nil {
		return nil, errors.TypeMismatch(errors.PhaseCallback, nil, "nil", iface)
	}
	d, err := a.catalog.Describe(ctx, iface)
	if err != nil {
		return nil, err
	}

	rv := reflect.ValueOf(host)
	goMethods := indexMethods(rv)
	goType := rv.Type().String()

	t := &Trampoline{
		adapter: a,
		host:    host,
		recv:    rv,
		iface:   d.ID,
		goType:  goType,
		methods: make(map[string]*boundMethod, len(d.Methods)),
		getters: make(map[string]*boundMethod),
		setters: make(map[string]*boundMethod),
		owner:   goid.Get(),
	}
	var missing []string

	for _, m := range d.Methods {
		bm, ok := bind(goMethods, methodCandidates(d.ID, m.Name), m.Params, m.Result)
		if !ok {
			if m.Optional {
				continue
			}
			missing = append(missing, d.ID+"#"+m.Name)
			continue
		}
		t.methods[m.Name] = bm
	}

	for _, p := range d.Properties {
		if p.Readable {
			bm, ok := bind(goMethods, getterCandidates(d.ID, p.Name), nil, p.Type)
			if !ok {
				missing = append(missing, d.ID+"#"+p.Name)
			} else {
				t.getters[p.Name] = bm
			}
		}
		if p.Writable {
			params := []catalog.ParamDescriptor{{Name: "value", Type: p.Type}}
			bm, ok := bind(goMethods, setterCandidates(d.ID, p.Name), params, catalog.Void)
			if !ok {
				missing = append(missing, d.ID+"#set-"+p.Name)
			} else {
				t.setters[p.Name] = bm
			}
		}
	}

	if len(missing) > 0 {
		Logger().Debug("host object rejected",
			zap.String("interface", d.ID),
			zap.String("go_type", goType),
			zap.Strings("missing", missing))
		return nil, errors.NewMissingMethodsError(goType, missing)
	}

	t.id = d.ID + "#" + goType + "#" + strconv.FormatUint(a.seq.Add(1), 10)
	t.refs.Store(1)
	Logger().Debug("host object adapted",
		zap.String("interface", d.ID),
		zap.String("go_type", goType),
		zap.String("object", t.id))
	return t, nil
}

type boundMethod struct {
	fn         reflect.Value
	params     []catalog.ParamDescriptor
	result     catalog.TypeTag
	goName     string
	wantsCtx   bool
	returnsErr bool
	hasResult  bool
}

func indexMethods(rv reflect.Value) map[string]reflect.Method {
	rt := rv.Type()
	out := make(map[string]reflect.Method, rt.NumMethod())
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() {
			continue
		}
		out[toKebabCase(m.Name)] = m
	}
	return out
}

// bind picks the first candidate whose shape fits the native member.
func bind(methods map[string]reflect.Method, candidates []string, params []catalog.ParamDescriptor, result catalog.TypeTag) (*boundMethod, bool) {
	for _, name := range candidates {
		m, ok := methods[name]
		if !ok {
			continue
		}
		bm, ok := shape(m, params, result)
		if ok {
			return bm, true
		}
	}
	return nil, false
}

func shape(m reflect.Method, params []catalog.ParamDescriptor, result catalog.TypeTag) (*boundMethod, bool) {
	ft := m.Type // includes receiver
	in := ft.NumIn() - 1

	bm := &boundMethod{fn: m.Func, goName: m.Name, params: params, result: result}
	if in > 0 && ft.In(1) == contextType {
		bm.wantsCtx = true
		in--
	}
	if ft.IsVariadic() || in != len(params) {
		return nil, false
	}

	out := ft.NumOut()
	if out > 0 && ft.Out(out-1) == errorType {
		bm.returnsErr = true
		out--
	}
	switch {
	case out > 1:
		return nil, false
	case out == 1:
		bm.hasResult = true
	case !result.IsVoid():
		return nil, false
	}
	return bm, true
}
