package cis

import (
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/internal/testmodules/cellml"
)

const (
	BootstrapInterface      = "cis:bootstrap"
	CompiledModelInterface  = "cis:compiled-model"
	CodeInfoInterface       = "cis:code-information"
	TargetInterface         = "cis:computation-target"
	TargetIteratorInterface = "cis:computation-target-iterator"
	RunInterface            = "cis:ode-integration-run"
	ObserverInterface       = "cis:progress-observer"
)

// Computation target types.
const (
	TargetConstant              = "CONSTANT"
	TargetVariableOfIntegration = "VARIABLE_OF_INTEGRATION"
	TargetStateVariable         = "STATE_VARIABLE"
	TargetAlgebraic             = "ALGEBRAIC"
	TargetFloating              = "FLOATING"
	TargetLocallyBound          = "LOCALLY_BOUND"
)

// Step types.
const (
	StepAdamsMoulton = "ADAMS_MOULTON_1_12"
	StepRungeKutta4  = "RUNGE_KUTTA_4"
	StepEuler        = "EULER"
)

var (
	targetTypes = []string{
		TargetConstant,
		TargetVariableOfIntegration,
		TargetStateVariable,
		TargetAlgebraic,
		TargetFloating,
		TargetLocallyBound,
	}
	stepTypes = []string{StepAdamsMoulton, StepRungeKutta4, StepEuler}
)

// Signatures returns the interfaces published by the module.
func Signatures() []*catalog.InterfaceSignature {
	double := catalog.Prim("double")
	ulong := catalog.Prim("unsigned long")
	return []*catalog.InterfaceSignature{
		{
			ID: BootstrapInterface,
			Methods: []catalog.MethodSignature{
				{
					Name:   "compileModelODE",
					Params: []catalog.ParamSignature{catalog.Param("model", catalog.InterfaceType(cellml.ModelInterface))},
					Result: catalog.InterfaceType(CompiledModelInterface),
					Raises: true,
				},
				{
					Name:   "createODEIntegrationRun",
					Params: []catalog.ParamSignature{catalog.Param("model", catalog.InterfaceType(CompiledModelInterface))},
					Result: catalog.InterfaceType(RunInterface),
					Raises: true,
				},
			},
		},
		{
			ID: CompiledModelInterface,
			Properties: []catalog.PropertySignature{
				{Name: "codeInformation", Type: catalog.InterfaceType(CodeInfoInterface), ReadOnly: true},
			},
		},
		{
			ID: CodeInfoInterface,
			Methods: []catalog.MethodSignature{
				{Name: "iterateTargets", Result: catalog.EnumeratorType(TargetIteratorInterface, TargetInterface)},
			},
			Properties: []catalog.PropertySignature{
				{Name: "rateIndexCount", Type: ulong, ReadOnly: true},
				{Name: "algebraicIndexCount", Type: ulong, ReadOnly: true},
				{Name: "constantIndexCount", Type: ulong, ReadOnly: true},
			},
		},
		{
			ID: TargetIteratorInterface,
			Methods: []catalog.MethodSignature{
				{Name: "nextComputationTarget", Result: catalog.InterfaceType(TargetInterface)},
			},
		},
		{
			ID: TargetInterface,
			Properties: []catalog.PropertySignature{
				{Name: "variable", Type: catalog.InterfaceType(cellml.VariableInterface), ReadOnly: true},
				{Name: "degree", Type: ulong, ReadOnly: true},
				{Name: "assignedIndex", Type: ulong, ReadOnly: true},
				{Name: "type", Type: catalog.EnumType("computation-target-type", targetTypes...), ReadOnly: true},
			},
		},
		{
			ID: RunInterface,
			Methods: []catalog.MethodSignature{
				{
					Name: "setResultRange",
					Params: []catalog.ParamSignature{
						catalog.Param("startBvar", double),
						catalog.Param("stopBvar", double),
						catalog.Param("incrementBvar", double),
					},
					Result: catalog.VoidType(),
					Raises: true,
				},
				{
					Name:   "setProgressObserver",
					Params: []catalog.ParamSignature{catalog.Param("observer", catalog.CallbackType(ObserverInterface))},
					Result: catalog.VoidType(),
				},
				{Name: "start", Result: catalog.VoidType(), Raises: true},
				{Name: "stop", Result: catalog.VoidType()},
			},
			Properties: []catalog.PropertySignature{
				{Name: "stepType", Type: catalog.EnumType("ode-step-type", stepTypes...)},
			},
		},
		{
			ID: ObserverInterface,
			Methods: []catalog.MethodSignature{
				{Name: "results", Params: []catalog.ParamSignature{catalog.Param("state", catalog.SequenceType(double))}, Result: catalog.VoidType()},
				{Name: "done", Result: catalog.VoidType()},
				{Name: "failed", Params: []catalog.ParamSignature{catalog.Param("errorMessage", catalog.Prim("wstring"))}, Result: catalog.VoidType()},
			},
		},
	}
}
