// Package refcount keeps native reference counts consistent with Go ownership.
//
// Every native reference the bridge takes is recorded in a Ledger. Proxies
// own their reference through an Owned value: exactly one release happens,
// either through an explicit Release or through a runtime cleanup attached
// to the proxy once it becomes unreachable.
//
// # Ownership Paths
//
//	Ledger.Acquire  - AddRef on the native object, record the handle
//	Ledger.Adopt    - record a reference already held (new trampolines)
//	Ledger.Release  - Release on the native object, exactly once per handle
//	Owned           - finalize-once owner attached to a Go value
//	Frame           - references held only while one native call is marshaled
//
// Observers subscribed to a Ledger see EventAcquired and EventReleased for
// every handle, which makes leaks and double releases directly testable.
package refcount
