package nativeobj

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/errors"
)

// Arg returns argument i as T, or an invalid-argument fault.
func Arg[T any](args []any, i int) (T, error) {
	var zero T
	if i >= len(args) {
		return zero, errors.NewFault(errors.StatusInvalidArgument, "missing argument %d", i)
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, errors.NewFault(errors.StatusInvalidArgument, "argument %d: unexpected %T", i, args[i])
	}
	return v, nil
}

// Value returns a getter for a fixed value.
func Value(v any) Getter {
	return func(context.Context) (any, error) { return v, nil }
}

// Field returns a getter and setter pair over a mutex-guarded variable.
func Field[T any](mu *sync.Mutex, p *T) (Getter, Setter) {
	get := func(context.Context) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		return *p, nil
	}
	set := func(_ context.Context, v any) error {
		x, ok := v.(T)
		if !ok {
			return errors.NewFault(errors.StatusInvalidArgument, "unexpected %T", v)
		}
		mu.Lock()
		*p = x
		mu.Unlock()
		return nil
	}
	return get, set
}

// NewEnumerator returns a native enumerator under iface over a snapshot of
// items. It answers hasNext and next, where next is the method name the
// interface declares; next returns nil once exhausted.
func NewEnumerator(iface, next string, items []dynbind.Object) *Object {
	var (
		mu  sync.Mutex
		pos int
	)
	snapshot := slices.Clone(items)
	return New(NextID("enumerator")).
		Method(iface, "hasNext", func(context.Context, []any) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			return pos < len(snapshot), nil
		}).
		Method(iface, next, func(context.Context, []any) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			if pos >= len(snapshot) {
				return nil, nil
			}
			item := snapshot[pos]
			pos++
			return item, nil
		})
}

// Get reads a property of another native object and asserts its type.
func Get[T any](ctx context.Context, obj dynbind.Object, iface, name string) (T, error) {
	var zero T
	v, err := obj.Invoke(ctx, iface, name, nil)
	if err != nil {
		return zero, err
	}
	x, ok := v.(T)
	if !ok {
		return zero, errors.NewFault(errors.StatusInvalidArgument, "%s#%s: unexpected %T", iface, name, v)
	}
	return x, nil
}

// Drain reads every element of a native enumerator by calling next until
// it returns nil.
func Drain(ctx context.Context, enum dynbind.Object, iface, next string) ([]dynbind.Object, error) {
	var out []dynbind.Object
	for {
		v, err := enum.Invoke(ctx, iface, next, nil)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return out, nil
		}
		obj, ok := v.(dynbind.Object)
		if !ok {
			return nil, errors.NewFault(errors.StatusInvalidArgument, "%s#%s: unexpected %T", iface, next, v)
		}
		out = append(out, obj)
	}
}

// Fail returns a fault with the given status.
func Fail(code errors.Status, format string, args ...any) error {
	return errors.NewFault(code, format, args...)
}

// Raise returns a fault carrying a native exception name.
func Raise(name, format string, args ...any) error {
	return &errors.Fault{Name: name, Code: errors.StatusFailed, Message: fmt.Sprintf(format, args...)}
}
