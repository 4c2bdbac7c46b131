package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/proxy"
	"github.com/wippyai/dynbind/runtime"

	// Bundled in-process modules.
	_ "github.com/wippyai/dynbind/internal/testmodules/cellml"
	_ "github.com/wippyai/dynbind/internal/testmodules/cis"
)

func main() {
	var (
		modules     = flag.String("modules", "", "Modules to load (comma-separated)")
		symbol      = flag.String("symbol", "", "Factory symbol to call")
		iface       = flag.String("iface", "", "Interface of the factory result")
		factoryArgs = flag.String("args", "", "Factory arguments (comma-separated)")
		member      = flag.String("call", "", "Member to invoke on the result (optional)")
		memberArgs  = flag.String("arg", "", "Member arguments (comma-separated)")
		describe    = flag.String("describe", "", "Describe an interface and exit")
		list        = flag.Bool("list", false, "List loaded modules and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *modules == "" {
		fmt.Fprintln(os.Stderr, "Usage: dynbind -modules <a,b> -symbol <factory> -iface <interface> [-call member] [-arg v,...]")
		fmt.Fprintln(os.Stderr, "       dynbind -modules <a,b> -list")
		fmt.Fprintln(os.Stderr, "       dynbind -modules <a,b> -describe <interface>")
		fmt.Fprintln(os.Stderr, "       dynbind -modules <a,b> -symbol <factory> -iface <interface> -i  (interactive mode)")
		fmt.Fprintf(os.Stderr, "Modules are searched in-process and in %s.\n", runtime.EnvPath)
		os.Exit(1)
	}

	opts := options{
		modules:     splitList(*modules),
		symbol:      *symbol,
		iface:       *iface,
		factoryArgs: splitList(*factoryArgs),
		member:      *member,
		memberArgs:  splitList(*memberArgs),
		describe:    *describe,
		list:        *list,
	}

	if *interactive {
		if err := runInteractive(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	modules     []string
	symbol      string
	iface       string
	factoryArgs []string
	member      string
	memberArgs  []string
	describe    string
	list        bool
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// open creates a runtime from the environment and loads the requested modules.
func open(ctx context.Context, modules []string) (*runtime.Runtime, error) {
	cfg, err := runtime.ConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	rt, err := runtime.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	for _, name := range modules {
		if _, err := rt.LoadModule(ctx, name); err != nil {
			rt.Close(ctx)
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}
	return rt, nil
}

func run(opts options) error {
	ctx := context.Background()

	rt, err := open(ctx, opts.modules)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	if opts.list {
		for _, h := range rt.Loader().Loaded() {
			fmt.Printf("%s (%s)\n", h.Name, h.Source)
			for _, s := range h.Module.Symbols() {
				fmt.Printf("  %s\n", s)
			}
		}
		return nil
	}

	if opts.describe != "" {
		d, err := rt.Describe(ctx, opts.describe)
		if err != nil {
			return err
		}
		printDescriptor(d)
		return nil
	}

	if opts.symbol == "" {
		return fmt.Errorf("no factory symbol given; use -symbol")
	}

	fmt.Printf("Calling %s(%s)...\n", opts.symbol, strings.Join(opts.factoryArgs, ", "))
	args := make([]any, len(opts.factoryArgs))
	for i, a := range opts.factoryArgs {
		args[i] = a
	}
	result, err := rt.Call(ctx, opts.symbol, opts.iface, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", opts.symbol, err)
	}

	p, ok := result.(*proxy.Proxy)
	if !ok {
		fmt.Printf("Result: %v\n", result)
		return nil
	}
	fmt.Printf("Result: %s\n", p)
	if opts.member == "" {
		printDescriptor(p.Describe())
		return nil
	}

	out, err := invokeMember(ctx, p, opts.member, opts.memberArgs)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.member, err)
	}
	fmt.Printf("Result: %s\n", formatValue(ctx, out))
	return nil
}

// invokeMember reads a property, writes it when one argument is given,
// or invokes a method, parsing raw arguments per the declared types.
func invokeMember(ctx context.Context, p *proxy.Proxy, member string, raw []string) (any, error) {
	d := p.Describe()
	if prop, ok := d.Property(member); ok {
		if len(raw) == 0 {
			return p.Get(ctx, member)
		}
		v, err := parseArg(raw[0], prop.Type)
		if err != nil {
			return nil, err
		}
		return nil, p.Set(ctx, member, v)
	}

	m, ok := d.Method(member)
	if !ok {
		return p.Invoke(ctx, member)
	}
	args := make([]any, len(raw))
	for i, r := range raw {
		if i >= len(m.Params) {
			args[i] = r
			continue
		}
		v, err := parseArg(r, m.Params[i].Type)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Params[i].Name, err)
		}
		args[i] = v
	}
	return p.Invoke(ctx, member, args...)
}

func printDescriptor(d *catalog.InterfaceDescriptor) {
	fmt.Printf("\nInterface %s:\n", d.ID)
	for _, m := range d.Methods {
		fmt.Printf("  %s\n", formatMethod(m))
	}
	for _, p := range d.Properties {
		fmt.Printf("  %s\n", formatProperty(p))
	}
}

func formatMethod(m *catalog.MethodDescriptor) string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.Name + ": " + p.Type.String()
	}
	s := m.Name + "(" + strings.Join(params, ", ") + ")"
	if !m.Result.IsVoid() {
		s += " -> " + m.Result.String()
	}
	if m.Raises {
		s += " raises"
	}
	return s
}

func formatProperty(p *catalog.PropertyDescriptor) string {
	mode := "rw"
	switch {
	case !p.Writable:
		mode = "ro"
	case !p.Readable:
		mode = "wo"
	}
	return fmt.Sprintf("%s: %s [%s]", p.Name, p.Type, mode)
}

// formatValue renders a host value. Enumerators are drained.
func formatValue(ctx context.Context, v any) string {
	switch x := v.(type) {
	case nil:
		return "void"
	case *proxy.Enumerator:
		items, err := x.Collect(ctx)
		if err != nil {
			return "error: " + err.Error()
		}
		parts := make([]string, len(items))
		for i, p := range items {
			parts[i] = p.String()
			p.Close()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
