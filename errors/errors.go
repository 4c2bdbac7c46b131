package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseLoad     Phase = "load"     // module loading and factory lookup
	PhaseReflect  Phase = "reflect"  // interface descriptor resolution
	PhaseDispatch Phase = "dispatch" // member lookup, arity checks
	PhaseMarshal  Phase = "marshal"  // host <-> native value coercion
	PhaseCallback Phase = "callback" // trampoline adaptation and invocation
	PhaseNative   Phase = "native"   // failures raised by native code
	PhaseHost     Phase = "host"     // host-facing API misuse
)

// Kind categorizes the error
type Kind string

const (
	KindModuleLoad        Kind = "module_load"
	KindSymbolNotFound    Kind = "symbol_not_found"
	KindNoSuchProperty    Kind = "no_such_property"
	KindNoSuchMethod      Kind = "no_such_method"
	KindNotWritable       Kind = "not_writable"
	KindNotReadable       Kind = "not_readable"
	KindArity             Kind = "arity"
	KindTypeMismatch      Kind = "type_mismatch"
	KindMissingMethod     Kind = "missing_method"
	KindNativeCall        Kind = "native_call"
	KindInvalidArgument   Kind = "invalid_argument"
	KindUnsupported       Kind = "unsupported"
	KindVersionMismatch   Kind = "version_mismatch"
	KindReleased          Kind = "released"
	KindInvalidDescriptor Kind = "invalid_descriptor"
)

// IsNative reports whether k is native_call or one of its refined subkinds.
func (k Kind) IsNative() bool {
	switch k {
	case KindNativeCall, KindInvalidArgument, KindUnsupported, KindVersionMismatch:
		return true
	}
	return false
}

// Sentinels for errors.Is. They match on Kind only.
var (
	ErrModuleLoad        = &Error{Kind: KindModuleLoad}
	ErrSymbolNotFound    = &Error{Kind: KindSymbolNotFound}
	ErrNoSuchProperty    = &Error{Kind: KindNoSuchProperty}
	ErrNoSuchMethod      = &Error{Kind: KindNoSuchMethod}
	ErrNotWritable       = &Error{Kind: KindNotWritable}
	ErrNotReadable       = &Error{Kind: KindNotReadable}
	ErrArity             = &Error{Kind: KindArity}
	ErrTypeMismatch      = &Error{Kind: KindTypeMismatch}
	ErrMissingMethod     = &Error{Kind: KindMissingMethod}
	ErrNativeCall        = &Error{Kind: KindNativeCall}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
	ErrVersionMismatch   = &Error{Kind: KindVersionMismatch}
	ErrReleased          = &Error{Kind: KindReleased}
	ErrInvalidDescriptor = &Error{Kind: KindInvalidDescriptor}
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	Interface  string
	Member     string
	GoType     string
	NativeType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Interface != "" || e.Member != "" {
		b.WriteString(" on ")
		b.WriteString(e.Interface)
		if e.Member != "" {
			b.WriteByte('.')
			b.WriteString(e.Member)
		}
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.NativeType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.NativeType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.NativeType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a Phase matches any phase. A native_call target also
// matches the refined native subkinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	if t.Kind == KindNativeCall {
		return e.Kind.IsNative()
	}
	return e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// On sets the interface and member the error refers to
func (b *Builder) On(iface, member string) *Builder {
	b.err.Interface = iface
	b.err.Member = member
	return b
}

// Path sets the argument or element path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// NativeType sets the native type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ModuleLoad creates a module loading error
func ModuleLoad(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindModuleLoad,
		Detail: fmt.Sprintf("cannot load module %q", name),
		Value:  name,
		Cause:  cause,
	}
}

// SymbolNotFound creates a missing factory symbol error
func SymbolNotFound(symbol string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindSymbolNotFound,
		Detail: fmt.Sprintf("symbol %q not found in any loaded module", symbol),
		Value:  symbol,
	}
}

// NoSuchProperty creates an unknown property error
func NoSuchProperty(iface, name string) *Error {
	return &Error{
		Phase:     PhaseDispatch,
		Kind:      KindNoSuchProperty,
		Interface: iface,
		Member:    name,
	}
}

// NoSuchMethod creates an unknown method error
func NoSuchMethod(iface, name string) *Error {
	return &Error{
		Phase:     PhaseDispatch,
		Kind:      KindNoSuchMethod,
		Interface: iface,
		Member:    name,
	}
}

// NotWritable creates a read-only property error
func NotWritable(iface, name string) *Error {
	return &Error{
		Phase:     PhaseDispatch,
		Kind:      KindNotWritable,
		Interface: iface,
		Member:    name,
		Detail:    "property is read-only",
	}
}

// NotReadable creates a write-only property error
func NotReadable(iface, name string) *Error {
	return &Error{
		Phase:     PhaseDispatch,
		Kind:      KindNotReadable,
		Interface: iface,
		Member:    name,
		Detail:    "property is write-only",
	}
}

// Arity creates an argument count error
func Arity(iface, name string, want, got int) *Error {
	return &Error{
		Phase:     PhaseDispatch,
		Kind:      KindArity,
		Interface: iface,
		Member:    name,
		Detail:    fmt.Sprintf("expected %d argument(s), got %d", want, got),
		Value:     got,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
	}
}

// Overflow creates a lossy numeric conversion error. It is a type mismatch.
func Overflow(phase Phase, path []string, value any, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		NativeType: nativeType,
		Detail:     fmt.Sprintf("value %v cannot be represented as %s", value, nativeType),
		Value:      value,
	}
}

// InvalidEnum creates an unknown enum case error. It is a type mismatch.
func InvalidEnum(phase Phase, path []string, value any, enumType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		NativeType: enumType,
		Detail:     fmt.Sprintf("invalid enum value %v for %s", value, enumType),
		Value:      value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Released creates a use-after-release error
func Released(iface string) *Error {
	return &Error{
		Phase:     PhaseHost,
		Kind:      KindReleased,
		Interface: iface,
		Detail:    "proxy has been released",
	}
}

// InvalidDescriptor creates an error for reflection data that cannot be described
func InvalidDescriptor(iface, member, detail string) *Error {
	return &Error{
		Phase:     PhaseReflect,
		Kind:      KindInvalidDescriptor,
		Interface: iface,
		Member:    member,
		Detail:    detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingMethod represents a single callback method absent from a host object
type MissingMethod struct {
	Interface string // e.g., "cis:progress-observer"
	Method    string // e.g., "done"
}

// MissingMethodsError is returned when a host object cannot implement a
// callback interface because required methods are absent
type MissingMethodsError struct {
	GoType  string
	Methods []MissingMethod
}

// NewMissingMethodsError creates an error from a list of "interface#method" strings
func NewMissingMethodsError(goType string, methods []string) *MissingMethodsError {
	result := &MissingMethodsError{
		GoType:  goType,
		Methods: make([]MissingMethod, 0, len(methods)),
	}
	for _, m := range methods {
		iface, name := parseMemberKey(m)
		result.Methods = append(result.Methods, MissingMethod{
			Interface: iface,
			Method:    name,
		})
	}
	return result
}

func parseMemberKey(key string) (iface, member string) {
	i, m, found := strings.Cut(key, "#")
	if found {
		return i, m
	}
	return key, ""
}

func (e *MissingMethodsError) Error() string {
	if len(e.Methods) == 0 {
		return "[callback] missing_method: no methods specified"
	}

	var b strings.Builder
	b.WriteString("[callback] missing_method: ")
	if e.GoType != "" {
		b.WriteString(e.GoType)
		b.WriteByte(' ')
	}
	b.WriteString(fmt.Sprintf("lacks %d callback method(s):\n", len(e.Methods)))

	// Group by interface for cleaner output
	byIface := make(map[string][]string)
	var order []string
	for _, m := range e.Methods {
		if _, exists := byIface[m.Interface]; !exists {
			order = append(order, m.Interface)
		}
		byIface[m.Interface] = append(byIface[m.Interface], m.Method)
	}

	for _, iface := range order {
		b.WriteString("\n  ")
		b.WriteString(iface)
		b.WriteString(":\n")
		for _, m := range byIface[iface] {
			b.WriteString("    - ")
			b.WriteString(m)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingMethodsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingMethodsError:
		return true
	case *Error:
		return t.Kind == KindMissingMethod && (t.Phase == "" || t.Phase == PhaseCallback)
	}
	return false
}
