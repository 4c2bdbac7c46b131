package cis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// substeps is the number of fixed solver steps between two reported points.
const substeps = 64

// stepper advances y from t by h in place.
type stepper interface {
	step(t, h float64, y []float64)
}

type system struct {
	k   []float64
	tmp []float64
}

func newSystem(k []float64) *system {
	return &system{k: k, tmp: make([]float64, len(k))}
}

// rates writes dy/dt into dst.
func (s *system) rates(dst, y []float64) {
	floats.MulTo(dst, s.k, y)
}

type euler struct {
	sys *system
	dy  []float64
}

func (e *euler) step(_, h float64, y []float64) {
	e.sys.rates(e.dy, y)
	floats.AddScaled(y, h, e.dy)
}

type rungeKutta4 struct {
	sys            *system
	k1, k2, k3, k4 []float64
	yt             []float64
}

func newRungeKutta4(sys *system) *rungeKutta4 {
	n := len(sys.k)
	return &rungeKutta4{
		sys: sys,
		k1:  make([]float64, n), k2: make([]float64, n),
		k3: make([]float64, n), k4: make([]float64, n),
		yt: make([]float64, n),
	}
}

func (r *rungeKutta4) step(_, h float64, y []float64) {
	r.sys.rates(r.k1, y)
	floats.AddScaledTo(r.yt, y, h/2, r.k1)
	r.sys.rates(r.k2, r.yt)
	floats.AddScaledTo(r.yt, y, h/2, r.k2)
	r.sys.rates(r.k3, r.yt)
	floats.AddScaledTo(r.yt, y, h, r.k3)
	r.sys.rates(r.k4, r.yt)

	floats.AddScaled(y, h/6, r.k1)
	floats.AddScaled(y, h/3, r.k2)
	floats.AddScaled(y, h/3, r.k3)
	floats.AddScaled(y, h/6, r.k4)
}

// adamsMoulton is the fourth order Adams-Bashforth-Moulton
// predictor-corrector, started with Runge-Kutta steps.
type adamsMoulton struct {
	sys     *system
	start   *rungeKutta4
	history [][]float64 // f(n-3) .. f(n)
	pred    []float64
	fp      []float64
}

func newAdamsMoulton(sys *system) *adamsMoulton {
	n := len(sys.k)
	return &adamsMoulton{
		sys:   sys,
		start: newRungeKutta4(sys),
		pred:  make([]float64, n),
		fp:    make([]float64, n),
	}
}

func (a *adamsMoulton) push(y []float64) {
	f := make([]float64, len(y))
	a.sys.rates(f, y)
	a.history = append(a.history, f)
	if len(a.history) > 4 {
		a.history = a.history[1:]
	}
}

func (a *adamsMoulton) step(t, h float64, y []float64) {
	if len(a.history) == 0 {
		a.push(y)
	}
	if len(a.history) < 4 {
		a.start.step(t, h, y)
		a.push(y)
		return
	}
	f0, f1, f2, f3 := a.history[3], a.history[2], a.history[1], a.history[0]

	// Predict.
	copy(a.pred, y)
	floats.AddScaled(a.pred, h*55/24, f0)
	floats.AddScaled(a.pred, -h*59/24, f1)
	floats.AddScaled(a.pred, h*37/24, f2)
	floats.AddScaled(a.pred, -h*9/24, f3)
	a.sys.rates(a.fp, a.pred)

	// Correct.
	floats.AddScaled(y, h*9/24, a.fp)
	floats.AddScaled(y, h*19/24, f0)
	floats.AddScaled(y, -h*5/24, f1)
	floats.AddScaled(y, h/24, f2)
	a.push(y)
}

func newStepper(stepType string, sys *system) stepper {
	switch stepType {
	case StepEuler:
		return &euler{sys: sys, dy: make([]float64, len(sys.k))}
	case StepRungeKutta4:
		return newRungeKutta4(sys)
	default:
		return newAdamsMoulton(sys)
	}
}

// grid returns the reporting points from start to stop.
func grid(start, stop, increment float64) []float64 {
	n := int(math.Round((stop-start)/increment)) + 1
	if n < 2 {
		n = 2
	}
	return floats.Span(make([]float64, n), start, stop)
}

func finite(y []float64) bool {
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
