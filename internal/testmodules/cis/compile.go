package cis

import (
	"context"
	"strconv"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/nativeobj"
	"github.com/wippyai/dynbind/internal/testmodules/cellml"
)

type target struct {
	variable dynbind.Object
	kind     string
	degree   uint32
	index    uint32
}

// compiled is an ODE system dy/dt = k*y over the states of a model.
type compiled struct {
	targets      []target
	voi          string
	initial      []float64
	coefficients []float64
	constants    uint32
}

func (c *compiled) rateCount() int { return len(c.initial) }

type varInfo struct {
	obj         dynbind.Object
	name        string
	initial     string
	bound       string
	coefficient float64
}

// compileModel reads a model through its native interfaces.
func compileModel(ctx context.Context, model dynbind.Object) (*compiled, error) {
	vars, err := modelVariables(ctx, model)
	if err != nil {
		return nil, err
	}

	c := &compiled{}
	for _, v := range vars {
		if v.bound == "" {
			continue
		}
		if c.voi != "" && c.voi != v.bound {
			return nil, nativeobj.Fail(errors.StatusUnsupported,
				"more than one variable of integration: %s and %s", c.voi, v.bound)
		}
		c.voi = v.bound
	}
	if c.voi == "" {
		return nil, nativeobj.Fail(errors.StatusInvalidArgument, "model has no rate equations")
	}

	for _, v := range vars {
		switch {
		case v.name == c.voi:
			c.targets = append(c.targets, target{variable: v.obj, kind: TargetVariableOfIntegration})

		case v.bound != "":
			y0 := 0.0
			if v.initial != "" {
				y0, err = strconv.ParseFloat(v.initial, 64)
				if err != nil {
					return nil, nativeobj.Fail(errors.StatusInvalidArgument,
						"variable %s: initial value %q is not a number", v.name, v.initial)
				}
			}
			i := uint32(len(c.initial))
			c.initial = append(c.initial, y0)
			c.coefficients = append(c.coefficients, v.coefficient)
			c.targets = append(c.targets,
				target{variable: v.obj, kind: TargetStateVariable, index: i},
				target{variable: v.obj, kind: TargetStateVariable, degree: 1, index: i})

		case v.initial != "":
			c.targets = append(c.targets, target{variable: v.obj, kind: TargetConstant, index: c.constants})
			c.constants++

		default:
			c.targets = append(c.targets, target{variable: v.obj, kind: TargetFloating})
		}
	}
	return c, nil
}

func modelVariables(ctx context.Context, model dynbind.Object) ([]varInfo, error) {
	enum, err := nativeobj.Get[dynbind.Object](ctx, model, cellml.ModelInterface, "allComponents")
	if err != nil {
		return nil, err
	}
	components, err := nativeobj.Drain(ctx, enum, cellml.ComponentIteratorInterface, "nextComponent")
	if err != nil {
		return nil, err
	}

	var out []varInfo
	for _, comp := range components {
		enum, err := nativeobj.Get[dynbind.Object](ctx, comp, cellml.ComponentInterface, "allVariables")
		if err != nil {
			return nil, err
		}
		vars, err := nativeobj.Drain(ctx, enum, cellml.VariableIteratorInterface, "nextVariable")
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			info := varInfo{obj: v}
			if info.name, err = nativeobj.Get[string](ctx, v, cellml.VariableInterface, "name"); err != nil {
				return nil, err
			}
			if info.initial, err = nativeobj.Get[string](ctx, v, cellml.VariableInterface, "initialValue"); err != nil {
				return nil, err
			}
			if info.bound, err = nativeobj.Get[string](ctx, v, cellml.VariableInterface, "boundVariable"); err != nil {
				return nil, err
			}
			if info.coefficient, err = nativeobj.Get[float64](ctx, v, cellml.VariableInterface, "rateCoefficient"); err != nil {
				return nil, err
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// compiledObject lets the integration service recognize its own models.
type compiledObject struct {
	*nativeobj.Object
	c *compiled
}

func (o *compiledObject) QueryInterface(iface string) (dynbind.Object, bool) {
	if _, ok := o.Object.QueryInterface(iface); !ok {
		return nil, false
	}
	return o, true
}

func newCompiledObject(c *compiled) *compiledObject {
	info := nativeobj.New(nativeobj.NextID("cis-code-information")).
		Property(CodeInfoInterface, "rateIndexCount", nativeobj.Value(uint32(c.rateCount())), nil).
		Property(CodeInfoInterface, "algebraicIndexCount", nativeobj.Value(uint32(0)), nil).
		Property(CodeInfoInterface, "constantIndexCount", nativeobj.Value(c.constants), nil).
		Method(CodeInfoInterface, "iterateTargets", func(context.Context, []any) (any, error) {
			items := make([]dynbind.Object, len(c.targets))
			for i, t := range c.targets {
				items[i] = newTargetObject(t)
			}
			return nativeobj.NewEnumerator(TargetIteratorInterface, "nextComputationTarget", items), nil
		})

	obj := nativeobj.New(nativeobj.NextID("cis-compiled-model")).
		Property(CompiledModelInterface, "codeInformation", nativeobj.Value(dynbind.Object(info)), nil)
	return &compiledObject{Object: obj, c: c}
}

func newTargetObject(t target) dynbind.Object {
	ordinal := 0
	for i, name := range targetTypes {
		if name == t.kind {
			ordinal = i
		}
	}
	kind := dynbind.EnumValue{Name: t.kind, Ordinal: int32(ordinal)}
	return nativeobj.New(nativeobj.NextID("cis-computation-target")).
		Property(TargetInterface, "variable", nativeobj.Value(t.variable), nil).
		Property(TargetInterface, "degree", nativeobj.Value(t.degree), nil).
		Property(TargetInterface, "assignedIndex", nativeobj.Value(t.index), nil).
		Property(TargetInterface, "type", nativeobj.Value(kind), nil)
}
