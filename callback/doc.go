// Package callback lets native code call back into host objects.
//
// Adapt checks a host object against a native callback interface and
// returns a Trampoline implementing dynbind.Object. The check happens once,
// at adaptation: a missing required method fails with a MissingMethodsError
// before the trampoline ever reaches native code.
//
//	type observer struct{ wait *callback.Wait }
//
//	func (o *observer) Results(state []float64) { ... }
//	func (o *observer) Done()                   { o.wait.Succeed() }
//	func (o *observer) Failed(why string)       { o.wait.Fail(why) }
//
//	t, err := adapter.Adapt(ctx, &observer{wait: w}, "cis:progress-observer")
//
// Native code may invoke trampolines from its own worker goroutines.
// Entry into the host object is serialized per trampoline. Errors and
// panics raised by host methods never travel back into native code; they
// are logged and handed to the configured Diagnostics sink.
//
// Wait is the completion primitive for asynchronous native operations:
// the initiating goroutine blocks in Wait until exactly one terminal
// callback calls Succeed or Fail.
package callback
