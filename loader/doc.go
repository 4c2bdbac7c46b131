// Package loader resolves named native modules and their factory symbols.
//
// A module is found by asking each configured Source in turn:
//
//	RegistrySource  in-process modules added with Register, usually from init
//	WasmSource      <dir>/<name>.wasm under search paths, run with wazero
//
// Modules may declare dependencies through Requirer. Load opens the
// transitive closure, orders it so dependencies come first and registers
// each module once. A dependency cycle or an unknown module fails the whole
// load with a module_load error and leaves nothing registered.
//
// Modules implementing InterfaceProvider publish their interface signatures
// on load, which makes them describable by a catalog.Catalog.
//
// Fetch searches loaded modules in load order:
//
//	l := loader.Default()
//	if _, err := l.Load(ctx, "cgrs_cellml"); err != nil {
//	    return err
//	}
//	bootstrap, err := l.Fetch("CreateCellMLBootstrap")
package loader
