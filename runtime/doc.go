// Package runtime provides the high-level API for binding native components.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Load a module and its dependencies
//	if _, err := rt.LoadModule(ctx, "cgrs_cellml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Call a zero-argument factory and view the result as an interface
//	bootstrap, err := rt.Fetch(ctx, "CreateCellMLBootstrap", "cellml:bootstrap")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bootstrap.Close()
//
//	model, err := bootstrap.Invoke(ctx, "createModel", "1.1")
//
// # Modules
//
// Modules come from two sources, tried in order:
//
//	in-process    - modules registered with loader.Register
//	.wasm files   - core WebAssembly modules found on Config.SearchPaths
//
// A .wasm module exposes each export as a factory and its instance as an
// object under the symbol "<module>.instance".
//
// # Callbacks
//
// Host objects are adapted to native callback interfaces by method name:
//
//	wait := rt.NewWait()
//	obs := &Observer{wait: wait} // Results, Done, Failed
//	_, err = run.Invoke(ctx, "setProgressObserver", obs)
//	_, err = run.Invoke(ctx, "start")
//	err = wait.Wait(ctx)
//
// Errors returned by host callback methods are logged and reported to
// Config.Diagnostics; they never reach native code.
//
// # Configuration
//
// ConfigFromEnv reads DYNBIND_PATH (a list of .wasm search directories) and
// DYNBIND_DEBUG (development logging).
package runtime
