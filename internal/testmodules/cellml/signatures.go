package cellml

import "github.com/wippyai/dynbind/catalog"

const (
	BootstrapInterface         = "cellml:bootstrap"
	ModelInterface             = "cellml:model"
	ComponentInterface         = "cellml:component"
	VariableInterface          = "cellml:variable"
	ComponentIteratorInterface = "cellml:component-iterator"
	VariableIteratorInterface  = "cellml:variable-iterator"
)

var wstring = catalog.Prim("wstring")

// Signatures returns the interfaces published by the module.
func Signatures() []*catalog.InterfaceSignature {
	return []*catalog.InterfaceSignature{
		{
			ID: BootstrapInterface,
			Methods: []catalog.MethodSignature{
				{
					Name:   "createModel",
					Params: []catalog.ParamSignature{catalog.Param("version", wstring)},
					Result: catalog.InterfaceType(ModelInterface),
					Raises: true,
				},
			},
		},
		{
			ID: ModelInterface,
			Methods: []catalog.MethodSignature{
				{Name: "createComponent", Result: catalog.InterfaceType(ComponentInterface)},
				{Name: "createCellMLVariable", Result: catalog.InterfaceType(VariableInterface)},
				{
					Name:   "addElement",
					Params: []catalog.ParamSignature{catalog.Param("component", catalog.InterfaceType(ComponentInterface))},
					Result: catalog.VoidType(),
					Raises: true,
				},
			},
			Properties: []catalog.PropertySignature{
				{Name: "name", Type: wstring},
				{Name: "cellmlVersion", Type: wstring, ReadOnly: true},
				{Name: "allComponents", Type: catalog.EnumeratorType(ComponentIteratorInterface, ComponentInterface), ReadOnly: true},
			},
		},
		{
			ID: ComponentInterface,
			Methods: []catalog.MethodSignature{
				{
					Name:   "addElement",
					Params: []catalog.ParamSignature{catalog.Param("variable", catalog.InterfaceType(VariableInterface))},
					Result: catalog.VoidType(),
					Raises: true,
				},
				{
					Name: "addRate",
					Params: []catalog.ParamSignature{
						catalog.Param("state", wstring),
						catalog.Param("bound", wstring),
						catalog.Param("coefficient", catalog.Prim("double")),
					},
					Result: catalog.VoidType(),
					Raises: true,
				},
			},
			Properties: []catalog.PropertySignature{
				{Name: "name", Type: wstring},
				{Name: "allVariables", Type: catalog.EnumeratorType(VariableIteratorInterface, VariableInterface), ReadOnly: true},
			},
		},
		{
			ID: VariableInterface,
			Properties: []catalog.PropertySignature{
				{Name: "name", Type: wstring},
				{Name: "unitsName", Type: wstring},
				{Name: "initialValue", Type: wstring},
				{Name: "boundVariable", Type: wstring, ReadOnly: true},
				{Name: "rateCoefficient", Type: catalog.Prim("double"), ReadOnly: true},
			},
		},
		{
			ID: ComponentIteratorInterface,
			Methods: []catalog.MethodSignature{
				{Name: "nextComponent", Result: catalog.InterfaceType(ComponentInterface)},
			},
		},
		{
			ID: VariableIteratorInterface,
			Methods: []catalog.MethodSignature{
				{Name: "nextVariable", Result: catalog.InterfaceType(VariableInterface)},
				{Name: "hasNext", Result: catalog.Prim("boolean")},
			},
		},
	}
}
