package errors

import (
	"fmt"
	"strings"
)

// Status is a native failure code
type Status uint32

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusUnsupported
	StatusVersionMismatch
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidArgument:
		return "invalid-argument"
	case StatusUnsupported:
		return "unsupported"
	case StatusVersionMismatch:
		return "version-mismatch"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// Fault is a native failure signal. Native implementations may return it
// from Invoke; any other error exposing Status() or Exception() works too.
type Fault struct {
	Name    string
	Message string
	Code    Status
}

func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString("native fault ")
	if f.Name != "" {
		b.WriteString(f.Name)
	} else {
		b.WriteString(f.Code.String())
	}
	if f.Message != "" {
		b.WriteString(": ")
		b.WriteString(f.Message)
	}
	return b.String()
}

// Status returns the native status code
func (f *Fault) Status() Status {
	return f.Code
}

// Exception returns the native exception name, if any
func (f *Fault) Exception() string {
	return f.Name
}

// NewFault creates a fault carrying a status code
func NewFault(code Status, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...)}
}

type statusCoder interface {
	Status() Status
}

type exceptionNamer interface {
	Exception() string
}

var statusKinds = map[Status]Kind{
	StatusInvalidArgument: KindInvalidArgument,
	StatusUnsupported:     KindUnsupported,
	StatusVersionMismatch: KindVersionMismatch,
	StatusFailed:          KindNativeCall,
}

var exceptionKinds = map[string]Kind{
	"invalidargument":      KindInvalidArgument,
	"illegalargument":      KindInvalidArgument,
	"unsupported":          KindUnsupported,
	"unsupportedoperation": KindUnsupported,
	"notimplemented":       KindUnsupported,
	"versionmismatch":      KindVersionMismatch,
	"unsupportedversion":   KindVersionMismatch,
}

// MapNative translates a native failure signal into the bridge taxonomy.
// The mapping is deterministic; unknown signals become native_call errors
// carrying the raw signal in Value and Cause.
func MapNative(iface, member string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	if e, ok := err.(*MissingMethodsError); ok {
		return e
	}

	kind := KindNativeCall
	var raw any = err

	if sc, ok := err.(statusCoder); ok {
		code := sc.Status()
		raw = code
		if k, known := statusKinds[code]; known {
			kind = k
		}
	}
	if kind == KindNativeCall {
		if en, ok := err.(exceptionNamer); ok && en.Exception() != "" {
			raw = en.Exception()
			if k, known := exceptionKinds[normalizeException(en.Exception())]; known {
				kind = k
			}
		}
	}

	return &Error{
		Phase:     PhaseNative,
		Kind:      kind,
		Interface: iface,
		Member:    member,
		Value:     raw,
		Cause:     err,
	}
}

func normalizeException(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	n := strings.ToLower(name)
	n = strings.NewReplacer("_", "", "-", "", " ", "").Replace(n)
	for _, suffix := range []string{"exception", "error"} {
		if trimmed := strings.TrimSuffix(n, suffix); trimmed != "" {
			n = trimmed
		}
	}
	return n
}
