// Package cellml is an in-process native module, "cgrs_cellml", providing
// a small CellML model API: models own components, components own
// variables, and both collections are exposed through native enumerators.
//
// Importing the package registers the module with the loader.
package cellml

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/nativeobj"
	"github.com/wippyai/dynbind/loader"
)

const (
	ModuleName      = "cgrs_cellml"
	BootstrapSymbol = "CreateCellMLBootstrap"
)

// Supported CellML versions, inclusive.
const (
	minVersion = "v1.0"
	maxVersion = "v1.1"
)

func init() {
	loader.Register(ModuleName, Open)
}

// Open creates the module.
func Open(context.Context) (loader.Module, error) {
	return &loader.Static{
		ModuleName: ModuleName,
		Factories: map[string]loader.FactoryFunc{
			BootstrapSymbol: func(context.Context, ...any) (any, error) {
				return newBootstrap(), nil
			},
		},
		Signatures: Signatures(),
	}, nil
}

// CheckVersion validates a CellML version string such as "1.1".
func CheckVersion(version string) error {
	v := "v" + strings.TrimPrefix(version, "v")
	if !semver.IsValid(v) {
		return nativeobj.Fail(errors.StatusInvalidArgument, "malformed CellML version %q", version)
	}
	if semver.Compare(v, minVersion) < 0 || semver.Compare(v, maxVersion) > 0 {
		return nativeobj.Raise("VersionMismatchException", "CellML version %s is not supported", version)
	}
	return nil
}

func newBootstrap() *nativeobj.Object {
	return nativeobj.New(nativeobj.NextID("cellml-bootstrap")).
		Method(BootstrapInterface, "createModel", func(_ context.Context, args []any) (any, error) {
			version, err := nativeobj.Arg[string](args, 0)
			if err != nil {
				return nil, err
			}
			if err := CheckVersion(version); err != nil {
				return nil, err
			}
			return newModel(version), nil
		})
}

type model struct {
	mu         sync.Mutex
	name       string
	components []dynbind.Object
}

func newModel(version string) *nativeobj.Object {
	m := &model{}
	getName, setName := nativeobj.Field(&m.mu, &m.name)
	return nativeobj.New(nativeobj.NextID("cellml-model")).
		Property(ModelInterface, "name", getName, setName).
		Property(ModelInterface, "cellmlVersion", nativeobj.Value(version), nil).
		Property(ModelInterface, "allComponents", func(context.Context) (any, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			return nativeobj.NewEnumerator(ComponentIteratorInterface, "nextComponent", m.components), nil
		}, nil).
		Method(ModelInterface, "createComponent", func(context.Context, []any) (any, error) {
			return newComponent(), nil
		}).
		Method(ModelInterface, "createCellMLVariable", func(context.Context, []any) (any, error) {
			return newVariable(), nil
		}).
		Method(ModelInterface, "addElement", func(_ context.Context, args []any) (any, error) {
			c, err := nativeobj.Arg[dynbind.Object](args, 0)
			if err != nil {
				return nil, err
			}
			view, ok := c.QueryInterface(ComponentInterface)
			if !ok {
				return nil, nativeobj.Fail(errors.StatusUnsupported, "element %s is not a component", c.ObjectID())
			}
			view.AddRef()
			m.mu.Lock()
			m.components = append(m.components, view)
			m.mu.Unlock()
			return nil, nil
		})
}

type component struct {
	mu        sync.Mutex
	name      string
	variables []dynbind.Object
	rates     map[string]*variable
}

func newComponent() *nativeobj.Object {
	c := &component{rates: make(map[string]*variable)}
	getName, setName := nativeobj.Field(&c.mu, &c.name)
	return nativeobj.New(nativeobj.NextID("cellml-component")).
		Property(ComponentInterface, "name", getName, setName).
		Property(ComponentInterface, "allVariables", func(context.Context) (any, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			return nativeobj.NewEnumerator(VariableIteratorInterface, "nextVariable", c.variables), nil
		}, nil).
		Method(ComponentInterface, "addElement", func(_ context.Context, args []any) (any, error) {
			v, err := nativeobj.Arg[dynbind.Object](args, 0)
			if err != nil {
				return nil, err
			}
			vo, ok := v.(*variableObject)
			if !ok {
				return nil, nativeobj.Fail(errors.StatusUnsupported, "element %s is not a variable of this module", v.ObjectID())
			}
			vo.AddRef()
			c.mu.Lock()
			c.variables = append(c.variables, vo)
			c.mu.Unlock()
			return nil, nil
		}).
		Method(ComponentInterface, "addRate", func(ctx context.Context, args []any) (any, error) {
			state, err := nativeobj.Arg[string](args, 0)
			if err != nil {
				return nil, err
			}
			bound, err := nativeobj.Arg[string](args, 1)
			if err != nil {
				return nil, err
			}
			k, err := nativeobj.Arg[float64](args, 2)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			s, b := c.lookup(state), c.lookup(bound)
			if s == nil || b == nil {
				return nil, nativeobj.Fail(errors.StatusInvalidArgument, "d(%s)/d(%s): unknown variable", state, bound)
			}
			s.mu.Lock()
			s.bound, s.coefficient = bound, k
			s.mu.Unlock()
			return nil, nil
		})
}

func (c *component) lookup(name string) *variable {
	for _, v := range c.variables {
		vo := v.(*variableObject)
		vo.v.mu.Lock()
		n := vo.v.name
		vo.v.mu.Unlock()
		if n == name {
			return vo.v
		}
	}
	return nil
}

type variable struct {
	mu           sync.Mutex
	name         string
	unitsName    string
	initialValue string
	bound        string
	coefficient  float64
}

// variableObject lets components recognize variables created by this module.
type variableObject struct {
	*nativeobj.Object
	v *variable
}

func (o *variableObject) QueryInterface(iface string) (dynbind.Object, bool) {
	if _, ok := o.Object.QueryInterface(iface); !ok {
		return nil, false
	}
	return o, true
}

func newVariable() *variableObject {
	v := &variable{}
	getName, setName := nativeobj.Field(&v.mu, &v.name)
	getUnits, setUnits := nativeobj.Field(&v.mu, &v.unitsName)
	getInitial, setInitial := nativeobj.Field(&v.mu, &v.initialValue)
	getBound, _ := nativeobj.Field(&v.mu, &v.bound)
	getCoefficient, _ := nativeobj.Field(&v.mu, &v.coefficient)
	obj := nativeobj.New(nativeobj.NextID("cellml-variable")).
		Property(VariableInterface, "name", getName, setName).
		Property(VariableInterface, "unitsName", getUnits, setUnits).
		Property(VariableInterface, "initialValue", getInitial, setInitial).
		Property(VariableInterface, "boundVariable", getBound, nil).
		Property(VariableInterface, "rateCoefficient", getCoefficient, nil)
	return &variableObject{Object: obj, v: v}
}
