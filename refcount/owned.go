package refcount

import (
	"errors"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/dynbind"
)

// Owned is the finalize-once owner of a single ledger reference.
// Release is idempotent; the first caller wins, whether it is an explicit
// Release or the cleanup attached to the holder.
type Owned struct {
	ledger   *Ledger
	cleanup  runtime.Cleanup
	handle   Handle
	released atomic.Bool
	tracked  bool
}

// Own acquires obj on l and ties the reference to holder: once holder is
// unreachable the reference is released from the runtime's cleanup goroutine.
// holder must be a pointer that is not reachable from obj.
func Own[T any](l *Ledger, holder *T, obj dynbind.Object, owner string) (*Owned, error) {
	h, err := l.Acquire(obj, owner)
	if err != nil {
		return nil, err
	}
	o := &Owned{ledger: l, handle: h}
	if holder != nil {
		o.cleanup = runtime.AddCleanup(holder, (*Owned).finalize, o)
		o.tracked = true
	}
	return o, nil
}

// Object returns the owned native object, or nil once released.
func (o *Owned) Object() dynbind.Object {
	if o.Released() {
		return nil
	}
	obj, _ := o.ledger.Get(o.handle)
	return obj
}

// Handle returns the ledger handle.
func (o *Owned) Handle() Handle {
	return o.handle
}

// Released reports whether the reference has been dropped, either by the
// owner or by closing the ledger.
func (o *Owned) Released() bool {
	return o.released.Load() || o.ledger.Closed()
}

// Release drops the reference. It reports whether this call performed the release.
func (o *Owned) Release() bool {
	if !o.released.CompareAndSwap(false, true) {
		return false
	}
	if o.tracked {
		o.cleanup.Stop()
	}
	o.drop("explicit")
	return true
}

func (o *Owned) finalize() {
	if !o.released.CompareAndSwap(false, true) {
		return
	}
	o.drop("cleanup")
}

func (o *Owned) drop(path string) {
	if err := o.ledger.Release(o.handle); err != nil {
		// A closed ledger already released everything it held.
		if !errors.Is(err, ErrAlreadyReleased) {
			Logger().Warn("release failed",
				zap.Uint32("handle", uint32(o.handle)),
				zap.String("path", path),
				zap.Error(err))
		}
		return
	}
	Logger().Debug("reference released",
		zap.Uint32("handle", uint32(o.handle)),
		zap.String("path", path))
}
