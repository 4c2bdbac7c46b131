// Package cis is an in-process native module, "cgrs_cis", integrating the
// rate equations of a cgrs_cellml model. Runs execute on a worker goroutine
// owned by the module and report through a cis:progress-observer callback.
//
// Importing the package registers the module with the loader.
package cis

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/nativeobj"
	"github.com/wippyai/dynbind/internal/testmodules/cellml"
	"github.com/wippyai/dynbind/loader"
)

const (
	ModuleName      = "cgrs_cis"
	BootstrapSymbol = "CreateIntegrationService"
)

// batchRows is how many result rows are delivered per results callback.
const batchRows = 16

func init() {
	loader.Register(ModuleName, Open)
}

// Open creates the module.
func Open(context.Context) (loader.Module, error) {
	return &loader.Static{
		ModuleName: ModuleName,
		Deps:       []string{cellml.ModuleName},
		Factories: map[string]loader.FactoryFunc{
			BootstrapSymbol: func(context.Context, ...any) (any, error) {
				return newService(), nil
			},
		},
		Signatures: Signatures(),
	}, nil
}

func newService() *nativeobj.Object {
	return nativeobj.New(nativeobj.NextID("cis-service")).
		Method(BootstrapInterface, "compileModelODE", func(ctx context.Context, args []any) (any, error) {
			model, err := nativeobj.Arg[dynbind.Object](args, 0)
			if err != nil {
				return nil, err
			}
			c, err := compileModel(ctx, model)
			if err != nil {
				return nil, err
			}
			return newCompiledObject(c), nil
		}).
		Method(BootstrapInterface, "createODEIntegrationRun", func(_ context.Context, args []any) (any, error) {
			m, err := nativeobj.Arg[dynbind.Object](args, 0)
			if err != nil {
				return nil, err
			}
			cm, ok := m.(*compiledObject)
			if !ok {
				return nil, nativeobj.Fail(errors.StatusUnsupported, "%s was not compiled by this service", m.ObjectID())
			}
			return newRun(cm.c), nil
		})
}

type run struct {
	model    *compiled
	mu       sync.Mutex
	stepType dynbind.EnumValue
	start    float64
	stop     float64
	incr     float64
	observer dynbind.Object
	started  bool
	stopped  atomic.Bool
}

func newRun(c *compiled) *nativeobj.Object {
	r := &run{
		model:    c,
		stepType: dynbind.EnumValue{Name: StepAdamsMoulton, Ordinal: 0},
		stop:     10,
		incr:     0.1,
	}
	getStep, setStep := nativeobj.Field(&r.mu, &r.stepType)
	return nativeobj.New(nativeobj.NextID("cis-run")).
		Property(RunInterface, "stepType", getStep, func(ctx context.Context, v any) error {
			ev, ok := v.(dynbind.EnumValue)
			if !ok || !slices.Contains(stepTypes, ev.Name) {
				return nativeobj.Fail(errors.StatusInvalidArgument, "unknown step type %v", v)
			}
			return setStep(ctx, ev)
		}).
		Method(RunInterface, "setResultRange", r.setResultRange).
		Method(RunInterface, "setProgressObserver", r.setProgressObserver).
		Method(RunInterface, "start", r.begin).
		Method(RunInterface, "stop", func(context.Context, []any) (any, error) {
			r.stopped.Store(true)
			return nil, nil
		})
}

func (r *run) setResultRange(_ context.Context, args []any) (any, error) {
	var v [3]float64
	for i := range v {
		x, err := nativeobj.Arg[float64](args, i)
		if err != nil {
			return nil, err
		}
		v[i] = x
	}
	if v[2] <= 0 || v[1] <= v[0] {
		return nil, nativeobj.Fail(errors.StatusInvalidArgument,
			"invalid result range [%g, %g] step %g", v[0], v[1], v[2])
	}
	r.mu.Lock()
	r.start, r.stop, r.incr = v[0], v[1], v[2]
	r.mu.Unlock()
	return nil, nil
}

func (r *run) setProgressObserver(_ context.Context, args []any) (any, error) {
	obs, err := nativeobj.Arg[dynbind.Object](args, 0)
	if err != nil {
		return nil, err
	}
	obs.AddRef()
	r.mu.Lock()
	prev := r.observer
	r.observer = obs
	r.mu.Unlock()
	if prev != nil {
		prev.Release()
	}
	return nil, nil
}

func (r *run) begin(context.Context, []any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil, nativeobj.Fail(errors.StatusUnsupported, "run already started")
	}
	if r.observer == nil {
		return nil, nativeobj.Fail(errors.StatusInvalidArgument, "no progress observer set")
	}
	r.started = true

	obs := r.observer
	r.observer = nil
	go r.integrate(obs, r.stepType.Name, grid(r.start, r.stop, r.incr))
	return nil, nil
}

// integrate runs on the module's worker goroutine. Each result row is
// the variable of integration, then the states, then their rates.
func (r *run) integrate(obs dynbind.Object, stepType string, points []float64) {
	defer obs.Release()
	ctx := context.Background()
	notify := func(member string, args ...any) {
		// Errors raised by the observer are not the integrator's concern.
		_, _ = obs.Invoke(ctx, ObserverInterface, member, args)
	}

	n := r.model.rateCount()
	sys := newSystem(r.model.coefficients)
	s := newStepper(stepType, sys)
	y := slices.Clone(r.model.initial)
	dy := make([]float64, n)

	var batch []any
	emit := func(t float64) {
		sys.rates(dy, y)
		batch = append(batch, t)
		for _, v := range y {
			batch = append(batch, v)
		}
		for _, v := range dy {
			batch = append(batch, v)
		}
		if len(batch) >= batchRows*(1+2*n) {
			notify("results", batch)
			batch = nil
		}
	}

	emit(points[0])
	for i := 1; i < len(points); i++ {
		if r.stopped.Load() {
			if len(batch) > 0 {
				notify("results", batch)
			}
			notify("failed", "integration stopped")
			return
		}
		t0, h := points[i-1], (points[i]-points[i-1])/substeps
		for j := range substeps {
			s.step(t0+float64(j)*h, h, y)
		}
		if !finite(y) {
			notify("failed", "integration diverged")
			return
		}
		emit(points[i])
	}
	if len(batch) > 0 {
		notify("results", batch)
	}
	notify("done")
}
