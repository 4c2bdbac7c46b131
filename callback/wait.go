package callback

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/dynbind/errors"
)

// Outcome is the terminal state of a Wait.
type Outcome int32

const (
	Pending Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Wait blocks a host goroutine until an asynchronous native operation
// reports completion. Exactly one of Succeed or Fail releases it; any
// later terminal call is ignored and reported as false.
type Wait struct {
	done   chan struct{}
	reason string
	state  atomic.Int32
}

// NewWait creates a pending wait.
func NewWait() *Wait {
	return &Wait{done: make(chan struct{})}
}

// Succeed releases the wait with a successful outcome.
func (w *Wait) Succeed() bool {
	return w.finish(Succeeded, "")
}

// Fail releases the wait with a failure reason.
func (w *Wait) Fail(reason string) bool {
	return w.finish(Failed, reason)
}

func (w *Wait) finish(o Outcome, reason string) bool {
	if !w.state.CompareAndSwap(int32(Pending), -1) {
		Logger().Warn("wait already released",
			zap.Stringer("outcome", w.Outcome()),
			zap.Stringer("attempted", o))
		return false
	}
	w.reason = reason
	w.state.Store(int32(o))
	close(w.done)
	return true
}

// Wait blocks until the wait is released or ctx is done. A failed
// outcome is returned as a native_call error carrying the reason.
// The context only bounds the host side; it does not cancel native work.
func (w *Wait) Wait(ctx context.Context) error {
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if w.Outcome() == Failed {
		return errors.New(errors.PhaseCallback, errors.KindNativeCall).
			Detail("%s", w.reason).
			Value(w.reason).
			Build()
	}
	return nil
}

// Done is closed once the wait is released.
func (w *Wait) Done() <-chan struct{} {
	return w.done
}

// Outcome returns the current state.
func (w *Wait) Outcome() Outcome {
	s := w.state.Load()
	if s < 0 {
		// Releasing; the terminal state is about to be published.
		<-w.done
		s = w.state.Load()
	}
	return Outcome(s)
}

// Reason returns the failure reason, if any.
func (w *Wait) Reason() string {
	if w.Outcome() != Failed {
		return ""
	}
	return w.reason
}
