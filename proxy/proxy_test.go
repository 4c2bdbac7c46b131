package proxy

import (
	"context"
	stderrors "errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/callback"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/nativeobj"
	"github.com/wippyai/dynbind/refcount"
)

const (
	modelIface     = "test:model"
	componentIface = "test:component"
	iteratorIface  = "test:component-iterator"
	observerIface  = "test:observer"
	pairIface      = "test:pair"
)

func testRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	reg := catalog.NewRegistry()
	err := reg.Publish(
		&catalog.InterfaceSignature{
			ID: modelIface,
			Methods: []catalog.MethodSignature{
				{Name: "addComponent", Params: []catalog.ParamSignature{catalog.Param("component", catalog.InterfaceType(componentIface))}, Result: catalog.VoidType()},
				{Name: "components", Result: catalog.EnumeratorType(iteratorIface, componentIface)},
				{Name: "scale", Params: []catalog.ParamSignature{catalog.Param("factor", catalog.Prim("double")), catalog.Param("count", catalog.Prim("short"))}, Result: catalog.Prim("long long")},
				{Name: "weights", Params: []catalog.ParamSignature{catalog.Param("values", catalog.SequenceType(catalog.Prim("float")))}, Result: catalog.SequenceType(catalog.Prim("double"))},
				{Name: "link", Params: []catalog.ParamSignature{catalog.Param("a", catalog.InterfaceType(componentIface)), catalog.Param("b", catalog.InterfaceType(componentIface))}, Result: catalog.VoidType()},
				{Name: "observe", Params: []catalog.ParamSignature{catalog.Param("observer", catalog.CallbackType(observerIface))}, Result: catalog.VoidType()},
				{Name: "validate", Params: []catalog.ParamSignature{catalog.Param("version", catalog.Prim("wstring"))}, Result: catalog.VoidType(), Raises: true},
			},
			Properties: []catalog.PropertySignature{
				{Name: "name", Type: catalog.Prim("wstring")},
				{Name: "version", Type: catalog.Prim("string"), ReadOnly: true},
				{Name: "kind", Type: catalog.EnumType("model-kind", "ODE", "DAE", "ALGEBRAIC")},
			},
		},
		&catalog.InterfaceSignature{
			ID:         componentIface,
			Properties: []catalog.PropertySignature{{Name: "name", Type: catalog.Prim("wstring")}},
		},
		&catalog.InterfaceSignature{
			ID: iteratorIface,
			Methods: []catalog.MethodSignature{
				{Name: "nextComponent", Result: catalog.InterfaceType(componentIface)},
				{Name: "hasNext", Result: catalog.Prim("boolean")},
			},
		},
		&catalog.InterfaceSignature{
			ID: observerIface,
			Methods: []catalog.MethodSignature{
				{Name: "notify", Params: []catalog.ParamSignature{catalog.Param("message", catalog.Prim("wstring"))}, Result: catalog.VoidType()},
			},
		},
		&catalog.InterfaceSignature{
			ID: pairIface,
			Methods: []catalog.MethodSignature{
				{Name: "pair", Params: []catalog.ParamSignature{
					catalog.Param("component", catalog.InterfaceType(componentIface)),
					catalog.Param("count", catalog.Prim("long")),
				}, Result: catalog.VoidType()},
			},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func newComponent(name string) *nativeobj.Object {
	var mu sync.Mutex
	get, set := nativeobj.Field(&mu, &name)
	return nativeobj.New(nativeobj.NextID("component")).
		Property(componentIface, "name", get, set)
}

// testModel is a native model that records what it was given.
type testModel struct {
	*nativeobj.Object
	mu         sync.Mutex
	name       string
	kind       dynbind.EnumValue
	components []dynbind.Object
	linked     []dynbind.Object
	notified   []any
}

func newTestModel() *testModel {
	m := &testModel{name: "untitled", kind: dynbind.EnumValue{Name: "ODE"}}
	getName, setName := nativeobj.Field(&m.mu, &m.name)
	getKind, setKind := nativeobj.Field(&m.mu, &m.kind)
	m.Object = nativeobj.New(nativeobj.NextID("model")).
		Property(modelIface, "name", getName, setName).
		Property(modelIface, "version", nativeobj.Value("1.1"), nil).
		Property(modelIface, "kind", getKind, setKind).
		Method(modelIface, "addComponent", func(_ context.Context, args []any) (any, error) {
			c, err := nativeobj.Arg[dynbind.Object](args, 0)
			if err != nil {
				return nil, err
			}
			c.AddRef()
			m.mu.Lock()
			m.components = append(m.components, c)
			m.mu.Unlock()
			return nil, nil
		}).
		Method(modelIface, "components", func(context.Context, []any) (any, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			e := nativeobj.New(nativeobj.NextID("iterator"))
			items := slices.Clone(m.components)
			pos := 0
			e.Method(iteratorIface, "hasNext", func(context.Context, []any) (any, error) {
				return pos < len(items), nil
			})
			e.Method(iteratorIface, "nextComponent", func(context.Context, []any) (any, error) {
				if pos >= len(items) {
					return nil, nil
				}
				pos++
				return items[pos-1], nil
			})
			return e, nil
		}).
		Method(modelIface, "scale", func(_ context.Context, args []any) (any, error) {
			f, err := nativeobj.Arg[float64](args, 0)
			if err != nil {
				return nil, err
			}
			n, err := nativeobj.Arg[int16](args, 1)
			if err != nil {
				return nil, err
			}
			return int64(f * float64(n)), nil
		}).
		Method(modelIface, "weights", func(_ context.Context, args []any) (any, error) {
			in, err := nativeobj.Arg[[]any](args, 0)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(in))
			for i, v := range in {
				out[i] = float64(v.(float32)) * 2
			}
			return out, nil
		}).
		Method(modelIface, "link", func(_ context.Context, args []any) (any, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			for _, a := range args {
				m.linked = append(m.linked, a.(dynbind.Object))
			}
			return nil, nil
		}).
		Method(modelIface, "observe", func(ctx context.Context, args []any) (any, error) {
			cb, err := nativeobj.Arg[dynbind.Object](args, 0)
			if err != nil {
				return nil, err
			}
			_, err = cb.Invoke(ctx, observerIface, "notify", []any{"observed"})
			return nil, err
		}).
		Method(modelIface, "validate", func(_ context.Context, args []any) (any, error) {
			v, _ := nativeobj.Arg[string](args, 0)
			if v != "1.1" {
				return nil, nativeobj.Raise("VersionMismatchException", "unsupported version %q", v)
			}
			return nil, nil
		})
	return m
}

func newBinder(t *testing.T, opts ...Option) *Binder {
	t.Helper()
	l := refcount.NewLedger()
	t.Cleanup(func() { _ = l.Close() })
	return NewBinder(catalog.New(testRegistry(t)), l, opts...)
}

func TestWrap(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	m := newTestModel()

	p, err := b.Wrap(ctx, m, modelIface)
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	if m.AddRefs() != 1 || b.Ledger().Len() != 1 {
		t.Fatalf("wrap should acquire exactly one reference: addrefs=%d ledger=%d", m.AddRefs(), b.Ledger().Len())
	}
	if p.Interface() != modelIface || p.ObjectID() != m.ObjectID() {
		t.Errorf("unexpected proxy %s", p)
	}

	_, err = b.Wrap(ctx, m, componentIface)
	if !stderrors.Is(err, errors.ErrTypeMismatch) || stderrors.Is(err, errors.ErrNativeCall) {
		t.Errorf("expected type mismatch for a foreign interface, got %v", err)
	}
	if m.AddRefs() != 1 {
		t.Error("a failed wrap must not acquire")
	}

	p.Close()
	p.Close()
	if m.Releases() != 1 || m.Refs() != 0 {
		t.Fatalf("close should release once: releases=%d refs=%d", m.Releases(), m.Refs())
	}
	if _, err := p.Get(ctx, "name"); !stderrors.Is(err, errors.ErrReleased) {
		t.Errorf("expected released error, got %v", err)
	}
}

func TestProxy_Properties(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	p, err := b.Wrap(ctx, newTestModel(), modelIface)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if err := p.Set(ctx, "name", "hodgkin_huxley"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	name, err := p.Get(ctx, "name")
	if err != nil || name != "hodgkin_huxley" {
		t.Fatalf("Get(name) = %v, %v", name, err)
	}

	if v, err := p.Get(ctx, "version"); err != nil || v != "1.1" {
		t.Errorf("Get(version) = %v, %v", v, err)
	}
	if err := p.Set(ctx, "version", "2.0"); !stderrors.Is(err, errors.ErrNotWritable) {
		t.Errorf("expected not writable, got %v", err)
	}
	if _, err := p.Get(ctx, "nope"); !stderrors.Is(err, errors.ErrNoSuchProperty) {
		t.Errorf("expected no such property, got %v", err)
	}
	if _, err := p.Get(ctx, "scale"); !stderrors.Is(err, errors.ErrNoSuchProperty) {
		t.Errorf("a method is not a property, got %v", err)
	}
	if err := p.Set(ctx, "name", 42); !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Errorf("expected type mismatch, got %v", err)
	}
}

func TestProxy_Enums(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	m := newTestModel()
	p, err := b.Wrap(ctx, m, modelIface)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	v, err := p.Get(ctx, "kind")
	if err != nil {
		t.Fatal(err)
	}
	kind, ok := v.(Enum)
	if !ok || !kind.Is("ODE") || kind.String() != "ODE" || kind.Type() != "model-kind" {
		t.Fatalf("Get(kind) = %#v", v)
	}

	if err := p.Set(ctx, "kind", "DAE"); err != nil {
		t.Fatalf("set by canonical string: %v", err)
	}
	if m.kind != (dynbind.EnumValue{Name: "DAE", Ordinal: 1}) {
		t.Errorf("native received %+v", m.kind)
	}
	if err := p.Set(ctx, "kind", kind); err != nil {
		t.Fatalf("set by enum value: %v", err)
	}
	if m.kind.Name != "ODE" || m.kind.Ordinal != 0 {
		t.Errorf("native received %+v", m.kind)
	}

	for _, bad := range []any{"PDE", 2, dynbind.EnumValue{Name: "DAE", Ordinal: 2}} {
		if err := p.Set(ctx, "kind", bad); !stderrors.Is(err, errors.ErrTypeMismatch) {
			t.Errorf("Set(kind, %v): expected type mismatch, got %v", bad, err)
		}
	}
}

func TestProxy_Invoke(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	m := newTestModel()
	p, err := b.Wrap(ctx, m, modelIface)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	v, err := p.Invoke(ctx, "scale", 2.5, 4)
	if err != nil || v != int64(10) {
		t.Fatalf("scale = %v (%T), %v", v, v, err)
	}

	seq, err := p.Invoke(ctx, "weights", []float64{0.5, 1, 1.5})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{1.0, 2.0, 3.0}, seq); diff != "" {
		t.Errorf("weights mismatch (-want +got):\n%s", diff)
	}

	err = func() error { _, err := p.Invoke(ctx, "validate", "0.9"); return err }()
	if !stderrors.Is(err, errors.ErrVersionMismatch) || !stderrors.Is(err, errors.ErrNativeCall) {
		t.Errorf("expected version mismatch, got %v", err)
	}
}

func TestProxy_ChecksBeforeNativeCall(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	m := newTestModel()
	p, err := b.Wrap(ctx, m, modelIface)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	tests := []struct {
		name   string
		method string
		args   []any
		want   error
	}{
		{"too few", "scale", []any{1.0}, errors.ErrArity},
		{"too many", "scale", []any{1.0, 2, 3}, errors.ErrArity},
		{"unknown", "explode", nil, errors.ErrNoSuchMethod},
		{"property as method", "name", nil, errors.ErrNoSuchMethod},
		{"wrong type", "scale", []any{"x", 2}, errors.ErrTypeMismatch},
		{"overflow", "scale", []any{1.0, 40000}, errors.ErrTypeMismatch},
		{"fractional", "scale", []any{1.0, 1.5}, errors.ErrTypeMismatch},
		{"float32 overflow", "weights", []any{[]float64{1e300}}, errors.ErrTypeMismatch},
		{"not a sequence", "weights", []any{1.0}, errors.ErrTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := m.Calls()
			_, err := p.Invoke(ctx, tt.method, tt.args...)
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if m.Calls() != before {
				t.Error("native call issued despite a failed check")
			}
		})
	}
}

func TestProxy_ObjectArguments(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	m := newTestModel()
	p, err := b.Wrap(ctx, m, modelIface)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	names := []string{"membrane", "sodium_channel", "potassium_channel"}
	for _, name := range names {
		c, err := b.Wrap(ctx, newComponent(name), componentIface)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := p.Invoke(ctx, "addComponent", c); err != nil {
			t.Fatalf("addComponent: %v", err)
		}
		c.Close()
	}
	for _, c := range m.components {
		// One reference kept by the model; proxy and frame references returned.
		if got := c.(*nativeobj.Object).Refs(); got != 1 {
			t.Errorf("component %s refs = %d, want 1", c.ObjectID(), got)
		}
	}

	for pass := range 2 {
		v, err := p.Invoke(ctx, "components")
		if err != nil {
			t.Fatal(err)
		}
		e, ok := v.(*Enumerator)
		if !ok {
			t.Fatalf("components returned %T", v)
		}
		var got []string
		for c, err := range e.All(ctx) {
			if err != nil {
				t.Fatal(err)
			}
			n, _ := c.Get(ctx, "name")
			got = append(got, n.(string))
			c.Close()
		}
		if diff := cmp.Diff(names, got); diff != "" {
			t.Errorf("pass %d mismatch (-want +got):\n%s", pass, diff)
		}
		if !e.Exhausted() || !e.Proxy().Closed() {
			t.Error("exhausted enumerator should release its reference")
		}
		for range e.All(ctx) {
			t.Error("exhausted enumerator yielded again")
		}
	}

	if b.Ledger().Len() != 1 {
		t.Errorf("only the model proxy should remain, ledger holds %d", b.Ledger().Len())
	}
}

func TestProxy_FailedMarshalReleasesArguments(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	m := newTestModel()
	p, err := b.Wrap(ctx, m, modelIface)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	comp := newComponent("membrane")
	c, err := b.Wrap(ctx, comp, componentIface)
	if err != nil {
		t.Fatal(err)
	}

	before := m.Calls()
	_, err = p.Invoke(ctx, "link", c, "not a component")
	if !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if m.Calls() != before {
		t.Error("native call issued despite a failed argument")
	}
	if comp.AddRefs() != 2 || comp.Releases() != 1 {
		t.Errorf("frame reference not balanced: addrefs=%d releases=%d", comp.AddRefs(), comp.Releases())
	}

	c.Close()
	if comp.Refs() != 0 {
		t.Errorf("refs = %d after close", comp.Refs())
	}
	if _, err := p.Invoke(ctx, "link", c, c); !stderrors.Is(err, errors.ErrReleased) {
		t.Errorf("closed proxy argument: expected released, got %v", err)
	}
}

type hostObserver struct {
	mu       sync.Mutex
	messages []string
}

func (o *hostObserver) Notify(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
}

func TestProxy_CallbackArguments(t *testing.T) {
	ctx := context.Background()
	var diags []callback.Diagnostic
	b := newBinder(t, WithDiagnostics(callback.DiagnosticsFunc(func(d callback.Diagnostic) {
		diags = append(diags, d)
	})))
	p, err := b.Wrap(ctx, newTestModel(), modelIface)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	host := &hostObserver{}
	if _, err := p.Invoke(ctx, "observe", host); err != nil {
		t.Fatalf("observe with host object: %v", err)
	}

	tr, err := b.Adapt(ctx, host, observerIface)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Invoke(ctx, "observe", tr); err != nil {
		t.Fatalf("observe with trampoline: %v", err)
	}
	if tr.Refs() != 1 {
		t.Errorf("frame should return the trampoline reference, refs = %d", tr.Refs())
	}

	if diff := cmp.Diff([]string{"observed", "observed"}, host.messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}

	_, err = p.Invoke(ctx, "observe", struct{}{})
	if !stderrors.Is(err, errors.ErrMissingMethod) {
		t.Errorf("expected missing method at adaptation, got %v", err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %+v", diags)
	}
	if b.Ledger().Len() != 1 {
		t.Errorf("ledger holds %d references", b.Ledger().Len())
	}
}

func TestProxy_Identity(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	m := newTestModel()

	p1, err := b.Wrap(ctx, m, modelIface)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := b.Wrap(ctx, m, modelIface)
	if err != nil {
		t.Fatal(err)
	}
	other, err := b.Wrap(ctx, newTestModel(), modelIface)
	if err != nil {
		t.Fatal(err)
	}

	if p1 == p2 || !p1.SameObject(p2) {
		t.Error("two proxies over one object should be distinct but the same object")
	}
	if p1.SameObject(other) {
		t.Error("distinct native objects reported as the same")
	}
	base, err := p1.QueryInterface(ctx, dynbind.BaseInterface)
	if err == nil {
		t.Errorf("base interface has no descriptor, got %v", base)
	}

	for _, p := range []*Proxy{p1, p2, other} {
		p.Close()
	}
	if m.AddRefs() != 2 || m.Releases() != 2 {
		t.Errorf("addrefs=%d releases=%d, want 2/2", m.AddRefs(), m.Releases())
	}
}

// reentrantObserver hands its own trampoline back to the model from
// inside Notify, so native code calls it again on the same goroutine.
type reentrantObserver struct {
	ctx      context.Context
	model    *Proxy
	self     *callback.Trampoline
	messages []string
	err      error
}

func (o *reentrantObserver) Notify(msg string) {
	o.messages = append(o.messages, msg)
	if len(o.messages) == 1 {
		_, o.err = o.model.Invoke(o.ctx, "observe", o.self)
	}
}

func TestProxy_ReentrantCallback(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	p, err := b.Wrap(ctx, newTestModel(), modelIface)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	host := &reentrantObserver{ctx: ctx, model: p}
	tr, err := b.Adapt(ctx, host, observerIface)
	if err != nil {
		t.Fatal(err)
	}
	host.self = tr

	done := make(chan error, 1)
	go func() {
		_, err := p.Invoke(ctx, "observe", tr)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("re-entrant callback deadlocked")
	}

	if host.err != nil {
		t.Fatalf("nested observe: %v", host.err)
	}
	if diff := cmp.Diff([]string{"observed", "observed"}, host.messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if tr.Refs() != 1 {
		t.Errorf("trampoline refs = %d, want 1", tr.Refs())
	}
}

type pairHost struct {
	calls int
}

func (h *pairHost) Pair(*Proxy, int) { h.calls++ }

func TestProxy_CallbackArgumentFailureReleasesProxies(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)

	host := &pairHost{}
	tr, err := b.Adapt(ctx, host, pairIface)
	if err != nil {
		t.Fatal(err)
	}
	live := b.Ledger().Len()

	comp := newComponent("membrane")
	_, err = tr.Invoke(ctx, pairIface, "pair", []any{comp, "not-a-number"})
	if !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if host.calls != 0 {
		t.Error("host called despite a failed argument")
	}
	if comp.Refs() != 0 || comp.AddRefs() != comp.Releases() {
		t.Errorf("component reference leaked: addrefs=%d releases=%d", comp.AddRefs(), comp.Releases())
	}
	if got := b.Ledger().Len(); got != live {
		t.Errorf("ledger holds %d references, want %d", got, live)
	}

	if _, err := tr.Invoke(ctx, pairIface, "pair", []any{comp, int32(2)}); err != nil {
		t.Fatalf("pair: %v", err)
	}
	if host.calls != 1 {
		t.Errorf("calls = %d, want 1", host.calls)
	}
}

func TestEnumerator_NotAnEnumerator(t *testing.T) {
	ctx := context.Background()
	b := newBinder(t)
	comp := newComponent("membrane")
	p, err := b.Wrap(ctx, comp, componentIface)
	if err != nil {
		t.Fatal(err)
	}

	e := newEnumerator(p, catalog.TypeTag{})
	_, ok, err := e.Next(ctx)
	if ok || !stderrors.Is(err, errors.ErrNoSuchMethod) {
		t.Fatalf("expected no such method, got %v", err)
	}
	if stderrors.Is(err, errors.ErrNativeCall) {
		t.Errorf("no native call was made, but error reports one: %v", err)
	}
	if comp.Calls() != 0 {
		t.Error("native call issued for a non-enumerator")
	}
	e.Close()
	if comp.Refs() != 0 {
		t.Errorf("refs = %d after close", comp.Refs())
	}
}
