package runtime

import (
	"context"
	stderrors "errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/wippyai/dynbind/callback"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/testmodules/cellml"
	"github.com/wippyai/dynbind/internal/testmodules/cis"
	"github.com/wippyai/dynbind/loader"
	"github.com/wippyai/dynbind/proxy"
	"github.com/wippyai/dynbind/refcount"
)

// addWASM is a minimal core module exporting add(i32, i32) -> i32.
var addWASM = []byte{
	0x00, 0x61, 0x73, 0x6d,
	0x01, 0x00, 0x00, 0x00,
	0x01, 0x07, 0x01, 0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x07, 0x01, 0x03, 0x61, 0x64, 0x64, 0x00, 0x00,
	0x0a, 0x09, 0x01, 0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
}

func newRuntime(t *testing.T, cfg *Config) *Runtime {
	t.Helper()
	ctx := context.Background()
	rt, err := NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	t.Cleanup(func() {
		if err := rt.Close(ctx); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return rt
}

// mustProxy returns a checker for (value, error) results that must be proxies.
func mustProxy(t *testing.T) func(any, error) *proxy.Proxy {
	return func(v any, err error) *proxy.Proxy {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		p, ok := v.(*proxy.Proxy)
		if !ok {
			t.Fatalf("expected a proxy, got %T", v)
		}
		return p
	}
}

func cellmlBootstrap(t *testing.T, rt *Runtime) *proxy.Proxy {
	t.Helper()
	ctx := context.Background()
	if _, err := rt.LoadModule(ctx, cellml.ModuleName); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	b, err := rt.Fetch(ctx, cellml.BootstrapSymbol, cellml.BootstrapInterface)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	return b
}

func TestRuntime_CreateModel(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	b := cellmlBootstrap(t, rt)

	model := mustProxy(t)(b.Invoke(ctx, "createModel", "1.1"))
	if model.Interface() != cellml.ModelInterface {
		t.Errorf("Interface = %s", model.Interface())
	}
	if v, err := model.Get(ctx, "cellmlVersion"); err != nil || v != "1.1" {
		t.Errorf("cellmlVersion = %v, %v", v, err)
	}
	if rt.Live() != 2 {
		t.Errorf("Live = %d, want bootstrap and model", rt.Live())
	}
	model.Close()
	if rt.Live() != 1 {
		t.Errorf("Live = %d after closing the model", rt.Live())
	}
}

func TestRuntime_VersionMismatch(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	b := cellmlBootstrap(t, rt)
	live := rt.Live()

	tests := []struct {
		version string
		want    error
	}{
		{"0.9", errors.ErrVersionMismatch},
		{"2.0", errors.ErrVersionMismatch},
		{"one point one", errors.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			v, err := b.Invoke(ctx, "createModel", tt.version)
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !stderrors.Is(err, errors.ErrNativeCall) {
				t.Error("mapped native failures are native call errors")
			}
			if v != nil {
				t.Errorf("no partial object expected, got %v", v)
			}
			if rt.Live() != live {
				t.Error("failed call leaked a reference")
			}
		})
	}
}

func TestRuntime_IterateChildrenTwice(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)
	b := cellmlBootstrap(t, rt)
	model := mustProxy(t)(b.Invoke(ctx, "createModel", "1.1"))

	names := []string{"mycomponent", "yourcomponent", "ourcomponent"}
	for _, n := range names {
		comp := mustProxy(t)(model.Invoke(ctx, "createComponent"))
		if err := comp.Set(ctx, "name", n); err != nil {
			t.Fatal(err)
		}
		if _, err := model.Invoke(ctx, "addElement", comp); err != nil {
			t.Fatal(err)
		}
		comp.Close()
	}

	for pass := range 2 {
		v, err := model.Get(ctx, "allComponents")
		if err != nil {
			t.Fatal(err)
		}
		e := v.(*proxy.Enumerator)
		var got []string
		for c, err := range e.All(ctx) {
			if err != nil {
				t.Fatal(err)
			}
			n, err := c.Get(ctx, "name")
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, n.(string))
			c.Close()
		}
		if diff := cmp.Diff(names, got); diff != "" {
			t.Errorf("pass %d mismatch (-want +got):\n%s", pass, diff)
		}

		rest, err := e.Collect(ctx)
		if err != nil || len(rest) != 0 {
			t.Errorf("re-iterating an exhausted enumerator yielded %d elements", len(rest))
		}
	}
}

// integrationObserver mirrors a host-side progress observer: it maps
// computation targets to result columns and checks the final state.
type integrationObserver struct {
	wait    *callback.Wait
	columns map[string]int
	rowSize int

	mu      sync.Mutex
	rows    int
	final   float64
	calls   atomic.Int32
	results func([]float64) error
}

func newIntegrationObserver(ctx context.Context, t *testing.T, codeInfo *proxy.Proxy, wait *callback.Wait) *integrationObserver {
	t.Helper()
	rates, err := codeInfo.Get(ctx, "rateIndexCount")
	if err != nil {
		t.Fatal(err)
	}
	algebraic, err := codeInfo.Get(ctx, "algebraicIndexCount")
	if err != nil {
		t.Fatal(err)
	}
	nRates := int(rates.(uint32))
	o := &integrationObserver{
		wait:    wait,
		columns: make(map[string]int),
		rowSize: 2*nRates + 1 + int(algebraic.(uint32)),
	}

	v, err := codeInfo.Invoke(ctx, "iterateTargets")
	if err != nil {
		t.Fatal(err)
	}
	for ct, err := range v.(*proxy.Enumerator).All(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		kind, _ := ct.Get(ctx, "type")
		degree, _ := ct.Get(ctx, "degree")
		index, _ := ct.Get(ctx, "assignedIndex")
		variable, _ := ct.Get(ctx, "variable")
		name, _ := variable.(*proxy.Proxy).Get(ctx, "name")

		var offset int
		switch kind.(proxy.Enum).String() {
		case cis.TargetVariableOfIntegration:
			offset = 0
		case cis.TargetStateVariable:
			offset = 1
		case cis.TargetAlgebraic:
			offset = 1 + 2*nRates
		default:
			continue
		}
		if degree.(uint32) == 0 {
			o.columns[name.(string)] = int(index.(uint32)) + offset
		}
	}
	return o
}

func (o *integrationObserver) Results(state []float64) error {
	o.calls.Add(1)
	if o.results != nil {
		if err := o.results(state); err != nil {
			return err
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := 0; i+o.rowSize <= len(state); i += o.rowSize {
		o.rows++
		if math.Abs(state[i+o.columns["time"]]-10) < 1e-6 {
			o.final = state[i+o.columns["x"]]
		}
	}
	return nil
}

func (o *integrationObserver) Done()             { o.wait.Succeed() }
func (o *integrationObserver) Failed(why string) { o.wait.Fail(why) }

// buildExponentialModel builds d(x)/d(time) = x with x(0) = 1.
func buildExponentialModel(ctx context.Context, t *testing.T, b *proxy.Proxy) *proxy.Proxy {
	t.Helper()
	model := mustProxy(t)(b.Invoke(ctx, "createModel", "1.1"))
	comp := mustProxy(t)(model.Invoke(ctx, "createComponent"))
	if err := comp.Set(ctx, "name", "mycomponent"); err != nil {
		t.Fatal(err)
	}
	if _, err := model.Invoke(ctx, "addElement", comp); err != nil {
		t.Fatal(err)
	}

	for _, v := range []struct{ name, initial string }{{"x", "1.0"}, {"time", ""}} {
		variable := mustProxy(t)(model.Invoke(ctx, "createCellMLVariable"))
		for prop, val := range map[string]string{"name": v.name, "unitsName": "dimensionless", "initialValue": v.initial} {
			if err := variable.Set(ctx, prop, val); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := comp.Invoke(ctx, "addElement", variable); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := comp.Invoke(ctx, "addRate", "x", "time", 1); err != nil {
		t.Fatal(err)
	}
	return model
}

func startIntegration(ctx context.Context, t *testing.T, rt *Runtime, stepType string, observe func(*proxy.Proxy, *callback.Wait) *integrationObserver) (*integrationObserver, *callback.Wait) {
	t.Helper()
	b := cellmlBootstrap(t, rt)
	if _, err := rt.LoadModule(ctx, cis.ModuleName); err != nil {
		t.Fatal(err)
	}
	model := buildExponentialModel(ctx, t, b)

	service, err := rt.Fetch(ctx, cis.BootstrapSymbol, cis.BootstrapInterface)
	if err != nil {
		t.Fatal(err)
	}
	compiled := mustProxy(t)(service.Invoke(ctx, "compileModelODE", model))
	run := mustProxy(t)(service.Invoke(ctx, "createODEIntegrationRun", compiled))
	if err := run.Set(ctx, "stepType", stepType); err != nil {
		t.Fatal(err)
	}
	if _, err := run.Invoke(ctx, "setResultRange", 0, 10, 0.1); err != nil {
		t.Fatal(err)
	}

	codeInfo := mustProxy(t)(compiled.Get(ctx, "codeInformation"))
	wait := rt.NewWait()
	obs := observe(codeInfo, wait)
	if _, err := run.Invoke(ctx, "setProgressObserver", obs); err != nil {
		t.Fatalf("setProgressObserver failed: %v", err)
	}
	if _, err := run.Invoke(ctx, "start"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return obs, wait
}

func TestRuntime_AsyncIntegration(t *testing.T) {
	for _, stepType := range []string{cis.StepAdamsMoulton, cis.StepRungeKutta4} {
		t.Run(stepType, func(t *testing.T) {
			ctx := context.Background()
			rt := newRuntime(t, nil)
			obs, wait := startIntegration(ctx, t, rt, stepType, func(ci *proxy.Proxy, w *callback.Wait) *integrationObserver {
				return newIntegrationObserver(ctx, t, ci, w)
			})

			waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := wait.Wait(waitCtx); err != nil {
				t.Fatalf("integration failed: %v", err)
			}
			if wait.Outcome() != callback.Succeeded {
				t.Fatalf("Outcome = %s", wait.Outcome())
			}
			if wait.Fail("late") || wait.Succeed() {
				t.Error("the wait must be released exactly once")
			}

			obs.mu.Lock()
			defer obs.mu.Unlock()
			if obs.rows != 101 {
				t.Errorf("rows = %d, want 101", obs.rows)
			}
			if want := math.Exp(10); math.Abs(obs.final-want)/want > 1e-6 {
				t.Errorf("x(10) = %v, want %v", obs.final, want)
			}
		})
	}
}

func TestRuntime_CallbackExceptionsAreDiagnostics(t *testing.T) {
	ctx := context.Background()
	var diags atomic.Int32
	var foreign atomic.Bool
	rt := newRuntime(t, &Config{
		Diagnostics: callback.DiagnosticsFunc(func(d callback.Diagnostic) {
			diags.Add(1)
			foreign.Store(d.Foreign)
		}),
	})

	obs, wait := startIntegration(ctx, t, rt, cis.StepRungeKutta4, func(ci *proxy.Proxy, w *callback.Wait) *integrationObserver {
		o := newIntegrationObserver(ctx, t, ci, w)
		o.results = func([]float64) error { return stderrors.New("host rejected results") }
		return o
	})

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := wait.Wait(waitCtx); err != nil {
		t.Fatalf("native run should complete despite host errors: %v", err)
	}
	if int(diags.Load()) != int(obs.calls.Load()) || diags.Load() == 0 {
		t.Errorf("diagnostics = %d, results calls = %d", diags.Load(), obs.calls.Load())
	}
	if !foreign.Load() {
		t.Error("callbacks from the native worker should be marked foreign")
	}
}

func TestRuntime_LoaderErrors(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, nil)

	if _, err := rt.LoadModule(ctx, "cgrs_missing"); !stderrors.Is(err, errors.ErrModuleLoad) {
		t.Errorf("expected module load error, got %v", err)
	}
	if _, err := rt.FetchFactory("CreateNothing"); !stderrors.Is(err, errors.ErrSymbolNotFound) {
		t.Errorf("expected symbol not found, got %v", err)
	}
	if _, err := rt.Fetch(ctx, "CreateNothing", "cellml:bootstrap"); !stderrors.Is(err, errors.ErrSymbolNotFound) {
		t.Errorf("expected symbol not found, got %v", err)
	}
}

type eventCounter struct {
	acquired, released atomic.Int32
}

func (c *eventCounter) OnRefEvent(e refcount.Event) {
	switch e.Type {
	case refcount.EventAcquired:
		c.acquired.Add(1)
	case refcount.EventReleased:
		c.released.Add(1)
	}
}

func TestRuntime_CloseReleasesEverything(t *testing.T) {
	ctx := context.Background()
	rt, err := New(ctx)
	if err != nil {
		t.Fatal(err)
	}
	counter := &eventCounter{}
	rt.Observe(counter)

	b := cellmlBootstrap(t, rt)
	model := mustProxy(t)(b.Invoke(ctx, "createModel", "1.1"))

	if err := rt.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if rt.Live() != 0 {
		t.Errorf("Live = %d after Close", rt.Live())
	}
	if counter.acquired.Load() != counter.released.Load() {
		t.Errorf("acquired %d, released %d", counter.acquired.Load(), counter.released.Load())
	}
	if _, err := model.Get(ctx, "name"); !stderrors.Is(err, errors.ErrReleased) {
		t.Errorf("expected released error after Close, got %v", err)
	}
	model.Close()
}

func TestRuntime_WasmModules(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "math"+loader.WasmExtension), addWASM, 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	rt := newRuntime(t, &Config{SearchPaths: []string{dir}})

	if _, err := rt.LoadModule(ctx, "math"); err != nil {
		t.Fatalf("LoadModule failed: %v", err)
	}
	v, err := rt.Call(ctx, "add", "", 40, 2)
	if err != nil || v != int32(42) {
		t.Fatalf("add = %v, %v", v, err)
	}

	inst, err := rt.Fetch(ctx, loader.InstanceSymbol("math"), loader.WasmInterface("math"))
	if err != nil {
		t.Fatal(err)
	}
	v, err = inst.Invoke(ctx, "add", int32(-2), int64(3))
	if err != nil || v != int32(1) {
		t.Errorf("instance add = %v, %v", v, err)
	}
	if _, err := inst.Invoke(ctx, "add", 1<<40, 0); !stderrors.Is(err, errors.ErrTypeMismatch) {
		t.Errorf("expected overflow, got %v", err)
	}

	counted, ok := inst.Object().(interface{ Refs() int64 })
	if !ok {
		t.Fatalf("instance object %T does not report references", inst.Object())
	}
	if got := counted.Refs(); got != 1 {
		t.Errorf("instance refs = %d with one proxy open, want 1", got)
	}
	inst.Close()
	if got := counted.Refs(); got != 0 {
		t.Errorf("instance refs = %d after close, want 0", got)
	}
}

func TestSetLogger_ConcurrentWithLogging(t *testing.T) {
	defer SetLogger(zap.NewNop())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetLogger(zap.NewNop().With(zap.Int("writer", i)))
		}()
		go func() {
			defer wg.Done()
			catalog.Logger().Debug("catalog")
			loader.Logger().Debug("loader")
			refcount.Logger().Debug("refcount")
			proxy.Logger().Debug("proxy")
			callback.Logger().Debug("callback")
		}()
	}
	wg.Wait()

	catalog.SetLogger(nil)
	if catalog.Logger() == nil {
		t.Error("a nil logger should restore the no-op default")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvPath, strings.Join([]string{"/opt/a", "", "/opt/b"}, string(os.PathListSeparator)))
	t.Setenv(EnvDebug, "false")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"/opt/a", "/opt/b"}, cfg.SearchPaths); diff != "" {
		t.Errorf("SearchPaths mismatch (-want +got):\n%s", diff)
	}
	if cfg.Logger != nil {
		t.Error("debug disabled should not install a logger")
	}

	t.Setenv(EnvDebug, "maybe")
	if _, err := ConfigFromEnv(); err == nil {
		t.Error("expected an error for a malformed DYNBIND_DEBUG")
	}
}
