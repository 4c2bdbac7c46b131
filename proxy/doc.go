// Package proxy exposes native objects to host code.
//
// A Binder turns a dynbind.Object into a *Proxy for one interface view.
// Dispatch is driven by the interface descriptor from the catalog:
//
//	model, _ := binder.Wrap(ctx, obj, "cellml:model")
//	_ = model.Set(ctx, "name", "hodgkin_huxley")
//	comp, _ := model.Invoke(ctx, "createComponent")
//
// Values are coerced between host and native forms by the parameter and
// result type tags. Integers are range checked. Floats convert to integers
// only when integral. Enums reach host code as Enum and are matched by
// canonical string. Native object results come back as new proxies, and
// enumerator results as single-pass *Enumerator values. Host objects
// passed where a callback interface is expected are adapted for the call.
//
// Every proxy owns exactly one native reference. Close releases it; a
// proxy that becomes unreachable without Close is released by the runtime's
// cleanup goroutine. References taken for in-flight call arguments are
// released when the call returns, whether or not it succeeded.
package proxy
