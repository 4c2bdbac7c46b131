// Package errors provides structured error types for the dynbind bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: interface and member, argument path,
// Go/native type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		On("cellml:model", "createModel").
//		Path("arg0").
//		GoType("int").
//		NativeType("string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Arity("cellml:model", "addElement", 1, 0)
//	err := errors.NoSuchProperty("cellml:component", "nmae")
//
// Host code inspects errors with the standard library:
//
//	if errors.Is(err, dynerrors.ErrVersionMismatch) { ... }
//	if errors.Is(err, dynerrors.ErrNativeCall) { ... } // any native failure
//
// Native failures are translated by MapNative. Native implementations signal
// failures with Fault values or any error exposing Status() or Exception().
package errors
