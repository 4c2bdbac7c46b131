package refcount

import (
	"errors"

	"github.com/wippyai/dynbind"
)

// Frame collects references taken while marshaling one native call.
// Close releases them in reverse order and must run on every path,
// including marshaling failures part-way through an argument list.
type Frame struct {
	ledger  *Ledger
	owner   string
	handles []Handle
}

// Frame starts a new in-flight frame.
func (l *Ledger) Frame(owner string) *Frame {
	return &Frame{ledger: l, owner: owner}
}

// Hold acquires a reference to obj for the duration of the frame.
func (f *Frame) Hold(obj dynbind.Object) error {
	h, err := f.ledger.Acquire(obj, f.owner)
	if err != nil {
		return err
	}
	f.handles = append(f.handles, h)
	return nil
}

// Adopt takes over a reference the caller already holds, such as the
// initial reference of a freshly created trampoline.
func (f *Frame) Adopt(obj dynbind.Object) error {
	h, err := f.ledger.Adopt(obj, f.owner)
	if err != nil {
		return err
	}
	f.handles = append(f.handles, h)
	return nil
}

// Len returns the number of references held by the frame.
func (f *Frame) Len() int {
	return len(f.handles)
}

// Close releases every reference in the frame.
func (f *Frame) Close() error {
	var errs []error
	for i := len(f.handles) - 1; i >= 0; i-- {
		if err := f.ledger.Release(f.handles[i]); err != nil && !errors.Is(err, ErrAlreadyReleased) {
			errs = append(errs, err)
		}
	}
	f.handles = nil
	return errors.Join(errs...)
}
