package callback

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
	"go.uber.org/zap"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/errors"
)

// Trampoline is the native-facing implementation of a callback interface.
// Native code may invoke it from any goroutine; entry into host code is
// serialized across goroutines but re-entrant on the goroutine already
// inside the host. The trampoline lives while native code holds references
// to it.
type Trampoline struct {
	host        any
	recv        reflect.Value
	adapter     *Adapter
	methods     map[string]*boundMethod
	getters     map[string]*boundMethod
	setters     map[string]*boundMethod
	iface       string
	goType      string
	id          string
	owner       int64
	refs        atomic.Int64
	invocations atomic.Uint64
	hostErrors  atomic.Uint64
	mu          sync.Mutex
	holder      atomic.Int64 // goroutine inside the host, 0 when none
}

var _ dynbind.Object = (*Trampoline)(nil)

// Host returns the adapted host object.
func (t *Trampoline) Host() any { return t.host }

// Interface returns the callback interface identity.
func (t *Trampoline) Interface() string { return t.iface }

// Refs returns the current native reference count.
func (t *Trampoline) Refs() int64 { return t.refs.Load() }

// Invocations returns how many calls native code made.
func (t *Trampoline) Invocations() uint64 { return t.invocations.Load() }

// HostErrors returns how many host exceptions were swallowed.
func (t *Trampoline) HostErrors() uint64 { return t.hostErrors.Load() }

func (t *Trampoline) ObjectID() string { return t.id }

func (t *Trampoline) Interfaces() []string {
	return []string{t.iface, dynbind.BaseInterface}
}

func (t *Trampoline) QueryInterface(iface string) (dynbind.Object, bool) {
	if iface == t.iface || iface == dynbind.BaseInterface {
		return t, true
	}
	return nil, false
}

func (t *Trampoline) AddRef() {
	t.refs.Add(1)
}

func (t *Trampoline) Release() {
	switch n := t.refs.Add(-1); {
	case n == 0:
		Logger().Debug("trampoline released", zap.String("object", t.id))
	case n < 0:
		t.refs.Add(1)
		Logger().Warn("trampoline over-released", zap.String("object", t.id))
	}
}

// Invoke dispatches a native call to the host object. Bridge failures
// (unknown member, arity, argument types) are returned. Failures raised by
// the host method are reported to diagnostics and the call returns the
// zero native value with a nil error.
func (t *Trampoline) Invoke(ctx context.Context, iface, member string, args []any) (any, error) {
	if iface != t.iface && iface != dynbind.BaseInterface {
		return nil, errors.NoSuchMethod(iface, member)
	}
	if t.refs.Load() <= 0 {
		return nil, errors.Released(t.iface)
	}

	bm, err := t.lookup(member, len(args))
	if err != nil {
		return nil, err
	}
	if bm == nil {
		// Optional member the host does not implement.
		return nil, nil
	}
	if len(args) != len(bm.params) {
		return nil, errors.Arity(t.iface, member, len(bm.params), len(args))
	}

	ft := bm.fn.Type()
	in := make([]reflect.Value, 0, ft.NumIn())
	in = append(in, t.recv)
	if bm.wantsCtx {
		if ctx == nil {
			ctx = context.Background()
		}
		in = append(in, reflect.ValueOf(ctx))
	}
	converted := make([]any, 0, len(args))
	for i, arg := range args {
		p := bm.params[i]
		path := []string{p.Name}
		hv := arg
		if t.adapter.inbound != nil {
			hv, err = t.adapter.inbound.ToHost(ctx, arg, p.Type)
			if err != nil {
				t.discard(converted)
				return nil, annotate(err, t.iface, member)
			}
			converted = append(converted, hv)
		}
		v, err := convertArg(hv, ft.In(len(in)), path)
		if err != nil {
			t.discard(converted)
			return nil, annotate(err, t.iface, member)
		}
		in = append(in, v)
	}

	t.invocations.Add(1)
	gid := goid.Get()

	reentered := t.enter(gid)
	out, hostErr := call(bm.fn, in)
	t.leave(reentered)

	if hostErr != nil {
		t.report(member, gid, hostErr)
		return nil, nil
	}
	if !bm.hasResult || bm.result.IsVoid() {
		return nil, nil
	}

	result := out[0].Interface()
	if t.adapter.inbound == nil {
		return result, nil
	}
	native, err := t.adapter.inbound.ToNative(ctx, result, bm.result, []string{"result"})
	if err != nil {
		t.report(member, gid, err)
		return nil, nil
	}
	return native, nil
}

// enter takes the host lock unless gid already holds it, in which case
// the host is calling back into itself through native code.
func (t *Trampoline) enter(gid int64) (reentered bool) {
	if t.holder.Load() == gid {
		return true
	}
	t.mu.Lock()
	t.holder.Store(gid)
	return false
}

func (t *Trampoline) leave(reentered bool) {
	if reentered {
		return
	}
	t.holder.Store(0)
	t.mu.Unlock()
}

// discard drops host values converted before an argument failed.
func (t *Trampoline) discard(values []any) {
	for _, v := range values {
		t.adapter.inbound.Discard(v)
	}
}

func (t *Trampoline) lookup(member string, argc int) (*boundMethod, error) {
	if bm, ok := t.methods[member]; ok {
		return bm, nil
	}
	d, err := t.adapter.catalog.Describe(context.Background(), t.iface)
	if err != nil {
		return nil, err
	}
	if _, ok := d.Method(member); ok {
		return nil, nil
	}
	p, ok := d.Property(member)
	if !ok {
		return nil, errors.NoSuchMethod(t.iface, member)
	}
	switch argc {
	case 0:
		if !p.Readable {
			return nil, errors.NotReadable(t.iface, member)
		}
		return t.getters[member], nil
	case 1:
		if !p.Writable {
			return nil, errors.NotWritable(t.iface, member)
		}
		return t.setters[member], nil
	}
	return nil, errors.Arity(t.iface, member, 1, argc)
}

// call runs fn, converting panics and a trailing non-nil error into a
// host exception.
func call(fn reflect.Value, in []reflect.Value) (out []reflect.Value, hostErr error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			if err, ok := r.(error); ok {
				hostErr = fmt.Errorf("panic: %w", err)
			} else {
				hostErr = fmt.Errorf("panic: %v", r)
			}
		}
	}()

	out = fn.Call(in)
	if n := len(out); n > 0 && fn.Type().Out(n-1) == errorType {
		if errV := out[n-1]; !errV.IsNil() {
			return nil, errV.Interface().(error)
		}
		out = out[:n-1]
	}
	return out, nil
}

func (t *Trampoline) report(member string, gid int64, err error) {
	t.hostErrors.Add(1)
	d := Diagnostic{
		Err:       err,
		Interface: t.iface,
		Member:    member,
		GoType:    t.goType,
		Goroutine: gid,
		Foreign:   gid != t.owner,
	}
	Logger().Warn("host callback raised",
		zap.String("interface", d.Interface),
		zap.String("member", d.Member),
		zap.String("go_type", d.GoType),
		zap.Bool("foreign_goroutine", d.Foreign),
		zap.Error(err))
	if t.adapter.diagnostics != nil {
		t.adapter.diagnostics.HostException(d)
	}
}

func annotate(err error, iface, member string) error {
	if e, ok := err.(*errors.Error); ok && e.Interface == "" {
		e.Interface, e.Member = iface, member
	}
	return err
}

// Unwrap returns the host object behind obj when obj is a trampoline.
func Unwrap(obj dynbind.Object) (any, bool) {
	t, ok := obj.(*Trampoline)
	if !ok {
		return nil, false
	}
	return t.host, true
}
