// Package dynbind binds Go code to native component objects that are only
// described at runtime by a reflection service.
//
// Components expose themselves through interface descriptors; the bridge turns
// those descriptors into callable proxies, marshals values in both directions,
// keeps native reference counts balanced, and lets native code call back into
// Go objects, including from native worker goroutines.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	dynbind/          Root package with the consumed native Object surface
//	├── runtime/      Host-facing API: load modules, fetch factories, adapt callbacks
//	├── loader/       Module loading (in-process registry, wazero-backed .wasm)
//	├── catalog/      Reflection catalog: cached interface descriptors and type tags
//	├── proxy/        Proxy objects, type coercion, enumerator adapter
//	├── callback/     Callback trampolines and the Wait primitive
//	├── refcount/     Native reference ledger with finalize-once owners
//	└── errors/       Structured error taxonomy and native failure mapping
//
// # Quick Start
//
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	if _, err := rt.LoadModule(ctx, "cgrs_cellml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	bootstrap, err := rt.Fetch(ctx, "CreateCellMLBootstrap", "cellml:bootstrap")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bootstrap.Close()
//
//	model, err := bootstrap.Invoke(ctx, "createModel", "1.1")
//
// # Reference Counting
//
// Every proxy owns exactly one native reference. It is released once, either
// by Close or when the proxy becomes unreachable. Close is the deterministic
// path and should be preferred.
//
// # Thread Safety
//
// Runtime, the catalog and the loader are safe for concurrent use. A Proxy
// issues each native call on the calling goroutine without locking; serializing
// concurrent calls on the same native object is the native side's concern.
// Callback trampolines may be invoked from any goroutine.
package dynbind
