package proxy

import (
	"context"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/dynbind"
	"github.com/wippyai/dynbind/catalog"
	"github.com/wippyai/dynbind/errors"
	"github.com/wippyai/dynbind/internal/coerce"
)

// Enumerator is a lazy, forward-only view over a native next/has-next
// object. It is single pass: once exhausted it stays exhausted, and a fresh
// enumerator comes only from calling the producing method again.
type Enumerator struct {
	proxy *Proxy
	elem  string
	mu    sync.Mutex
	done  bool
}

func newEnumerator(p *Proxy, tag catalog.TypeTag) *Enumerator {
	e := &Enumerator{proxy: p}
	if tag.Elem != nil {
		e.elem = tag.Elem.Interface
	} else if p.desc.Next != nil {
		e.elem = p.desc.Next.Result.Interface
	}
	return e
}

// Interface returns the interface identity of the elements.
func (e *Enumerator) Interface() string { return e.elem }

// Proxy returns the proxy of the native enumerator object itself.
func (e *Enumerator) Proxy() *Proxy { return e.proxy }

// Next returns the next element. It returns false once the native side
// signals exhaustion, after which the enumerator's reference is released.
func (e *Enumerator) Next(ctx context.Context) (*Proxy, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return nil, false, nil
	}

	d := e.proxy.desc
	if d.Next == nil {
		return nil, false, errors.New(errors.PhaseDispatch, errors.KindNoSuchMethod).
			On(d.ID, "next").
			Detail("%s is not an enumerator", d.ID).
			Build()
	}
	if d.HasNext != nil {
		raw, err := e.proxy.call(ctx, d.HasNext.Name, nil)
		if err != nil {
			return nil, false, err
		}
		more, err := coerce.Bool(raw, "boolean", []string{d.HasNext.Name})
		if err != nil {
			return nil, false, annotate(err, d.ID, d.HasNext.Name)
		}
		if !more {
			e.finish()
			return nil, false, nil
		}
	}

	raw, err := e.proxy.call(ctx, d.Next.Name, nil)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		e.finish()
		return nil, false, nil
	}
	obj, ok := raw.(dynbind.Object)
	if !ok {
		return nil, false, annotate(
			errors.TypeMismatch(errors.PhaseMarshal, []string{"result"}, typeName(raw), e.elem),
			d.ID, d.Next.Name)
	}
	p, err := e.proxy.binder.Wrap(ctx, obj, e.elem)
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

// All yields the remaining elements. Iteration stops at the first error,
// which is yielded with a nil proxy.
func (e *Enumerator) All(ctx context.Context) iter.Seq2[*Proxy, error] {
	return func(yield func(*Proxy, error) bool) {
		for {
			p, ok, err := e.Next(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Collect drains the enumerator into a slice. On error the elements
// collected so far are closed.
func (e *Enumerator) Collect(ctx context.Context) ([]*Proxy, error) {
	var out []*Proxy
	for p, err := range e.All(ctx) {
		if err != nil {
			for _, q := range out {
				q.Close()
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Exhausted reports whether the enumerator has ended.
func (e *Enumerator) Exhausted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done
}

// Close ends the enumerator and releases its native reference.
func (e *Enumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finish()
	return nil
}

func (e *Enumerator) finish() {
	if e.done {
		return
	}
	e.done = true
	e.proxy.Close()
	Logger().Debug("enumerator exhausted",
		zap.String("interface", e.proxy.desc.ID),
		zap.String("object", e.proxy.id))
}
