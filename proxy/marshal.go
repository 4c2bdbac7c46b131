package proxy

import (
	"context"
	"reflect"
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/callback"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/coerce"
	"github.com/wippyai/dynbind/refcount"
)

func typeName(v any) string {
	switch v.(type) {
	case *Proxy:
		return "proxy"
	case *Enumerator:
		return "enumerator"
	case Enum:
		return "enum"
	}
	return coerce.TypeName(v)
}

func box[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

// scalar converts v to the Go form of a primitive scalar tag. It serves
// both directions: host arguments going out and native results coming in.
func scalar(v any, tag catalog.TypeTag, path []string) (any, error) {
	native := tag.String()
	switch tag.WIT.(type) {
	case wit.S8:
		return box(coerce.Integer[int8](v, native, path))
	case wit.U8:
		return box(coerce.Integer[uint8](v, native, path))
	case wit.S16:
		return box(coerce.Integer[int16](v, native, path))
	case wit.U16:
		return box(coerce.Integer[uint16](v, native, path))
	case wit.S32:
		return box(coerce.Integer[int32](v, native, path))
	case wit.U32:
		return box(coerce.Integer[uint32](v, native, path))
	case wit.S64:
		return box(coerce.Integer[int64](v, native, path))
	case wit.U64:
		return box(coerce.Integer[uint64](v, native, path))
	case wit.F32:
		return box(coerce.Float[float32](v, native, path))
	case wit.F64:
		return box(coerce.Float[float64](v, native, path))
	case wit.Char:
		return box(coerce.Char(v, native, path))
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "scalar type "+native)
}

func elemPath(path []string, i int) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, "["+strconv.Itoa(i)+"]")
}

// toNative converts a host value to its native form for tag. Object
// references taken along the way are recorded in frame and released when
// the call completes. With a nil frame the references pass to the receiver.
func (b *Binder) toNative(ctx context.Context, frame *refcount.Frame, v any, tag catalog.TypeTag, path []string) (any, error) {
	switch tag.Kind {
	case catalog.KindVoid:
		return nil, nil
	case catalog.KindBool:
		return box(coerce.Bool(v, tag.String(), path))
	case catalog.KindString:
		return box(coerce.String(v, tag.String(), path))
	case catalog.KindScalar:
		return scalar(v, tag, path)
	case catalog.KindEnum:
		return box(enumToNative(v, tag, path))
	case catalog.KindSequence:
		return b.sequenceToNative(ctx, frame, v, tag, path)
	case catalog.KindInterface, catalog.KindEnumerator, catalog.KindCallback:
		return b.objectToNative(ctx, frame, v, tag, path)
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "type "+tag.String())
}

func (b *Binder) sequenceToNative(ctx context.Context, frame *refcount.Frame, v any, tag catalog.TypeTag, path []string) (any, error) {
	if v == nil {
		return []any{}, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.TypeMismatch(errors.PhaseMarshal, path, typeName(v), tag.String())
	}
	out := make([]any, rv.Len())
	for i := range out {
		x, err := b.toNative(ctx, frame, rv.Index(i).Interface(), *tag.Elem, elemPath(path, i))
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (b *Binder) objectToNative(ctx context.Context, frame *refcount.Frame, v any, tag catalog.TypeTag, path []string) (any, error) {
	var obj dynbind.Object
	switch x := v.(type) {
	case nil:
		return nil, nil
	case *Proxy:
		if x.Closed() {
			return nil, errors.Released(x.Interface())
		}
		obj = x.obj
	case *Enumerator:
		if x.proxy.Closed() {
			return nil, errors.Released(x.proxy.Interface())
		}
		obj = x.proxy.obj
	case dynbind.Object:
		obj = x
	default:
		if tag.Kind != catalog.KindCallback {
			return nil, errors.TypeMismatch(errors.PhaseMarshal, path, typeName(v), tag.String())
		}
		t, err := b.adapter.Adapt(ctx, v, tag.Interface)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			if err := frame.Adopt(t); err != nil {
				t.Release()
				return nil, err
			}
		}
		return t, nil
	}

	view, ok := obj.QueryInterface(tag.Interface)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseMarshal, path, typeName(v)+" "+obj.ObjectID(), tag.String())
	}
	if frame != nil {
		if err := frame.Hold(view); err != nil {
			return nil, err
		}
	}
	return view, nil
}

// toHost converts a native value to the host form for tag. Object results
// are wrapped in new proxies; trampolines unwrap to their host object.
func (b *Binder) toHost(ctx context.Context, v any, tag catalog.TypeTag, path []string) (any, error) {
	switch tag.Kind {
	case catalog.KindVoid:
		return nil, nil
	case catalog.KindBool:
		return box(coerce.Bool(v, tag.String(), path))
	case catalog.KindString:
		return box(coerce.String(v, tag.String(), path))
	case catalog.KindScalar:
		return scalar(v, tag, path)
	case catalog.KindEnum:
		return box(enumToHost(v, tag, path))
	case catalog.KindSequence:
		return b.sequenceToHost(ctx, v, tag, path)
	case catalog.KindInterface, catalog.KindEnumerator, catalog.KindCallback:
		return b.objectToHost(ctx, v, tag, path)
	}
	return nil, errors.Unsupported(errors.PhaseMarshal, "type "+tag.String())
}

func (b *Binder) sequenceToHost(ctx context.Context, v any, tag catalog.TypeTag, path []string) (any, error) {
	if v == nil {
		return []any{}, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.TypeMismatch(errors.PhaseMarshal, path, typeName(v), tag.String())
	}
	out := make([]any, rv.Len())
	for i := range out {
		x, err := b.toHost(ctx, rv.Index(i).Interface(), *tag.Elem, elemPath(path, i))
		if err != nil {
			closeAll(out[:i])
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (b *Binder) objectToHost(ctx context.Context, v any, tag catalog.TypeTag, path []string) (any, error) {
	if v == nil {
		return nil, nil
	}
	obj, ok := v.(dynbind.Object)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseMarshal, path, typeName(v), tag.String())
	}
	if host, ok := callback.Unwrap(obj); ok {
		return host, nil
	}
	p, err := b.Wrap(ctx, obj, tag.Interface)
	if err != nil {
		return nil, err
	}
	if tag.Kind == catalog.KindEnumerator {
		return newEnumerator(p, tag), nil
	}
	return p, nil
}

// closeAll releases proxies produced before a conversion failed.
func closeAll(values []any) {
	for _, v := range values {
		switch x := v.(type) {
		case *Proxy:
			x.Close()
		case *Enumerator:
			x.Close()
		case []any:
			closeAll(x)
		}
	}
}

// ToHost implements callback.Inbound for values native code passes to
// host callbacks.
func (b *Binder) ToHost(ctx context.Context, v any, tag catalog.TypeTag) (any, error) {
	return b.toHost(ctx, v, tag, nil)
}

// ToNative implements callback.Inbound for values host callbacks return.
// References created here pass to the native caller.
func (b *Binder) ToNative(ctx context.Context, v any, tag catalog.TypeTag, path []string) (any, error) {
	return b.toNative(ctx, nil, v, tag, path)
}

// Discard implements callback.Inbound. It closes the proxies and
// enumerators ToHost produced for v.
func (b *Binder) Discard(v any) {
	closeAll([]any{v})
}

var _ callback.Inbound = (*Binder)(nil)
