package refcount

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wippyai/dynbind"
)

var (
	ErrClosed          = errors.New("reference ledger closed")
	ErrInvalidHandle   = errors.New("invalid reference handle")
	ErrAlreadyReleased = errors.New("reference already released")
)

// Ledger records every native reference the bridge holds.
// Acquire calls AddRef on the native object, Release calls Release exactly
// once per handle. Handles are reused through a free list.
type Ledger struct {
	entries   []entry
	freeList  []Handle
	observers []Observer
	stats     Stats
	mu        sync.Mutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	obj   dynbind.Object
	owner string
	valid bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Acquire adds one native reference to obj and records it.
func (l *Ledger) Acquire(obj dynbind.Object, owner string) (Handle, error) {
	if obj == nil {
		return 0, ErrInvalidHandle
	}
	obj.AddRef()
	h, err := l.insert(obj, owner)
	if err != nil {
		obj.Release()
		return 0, err
	}
	return h, nil
}

// Adopt records a reference the caller already holds, without AddRef.
// Release of the returned handle drops that reference.
func (l *Ledger) Adopt(obj dynbind.Object, owner string) (Handle, error) {
	if obj == nil {
		return 0, ErrInvalidHandle
	}
	return l.insert(obj, owner)
}

func (l *Ledger) insert(obj dynbind.Object, owner string) (Handle, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return 0, ErrClosed
	}

	e := entry{obj: obj, owner: owner, valid: true}
	var h Handle
	if len(l.freeList) > 0 {
		h = l.freeList[len(l.freeList)-1]
		l.freeList = l.freeList[:len(l.freeList)-1]
		l.entries[h-1] = e
	} else {
		l.entries = append(l.entries, e)
		h = Handle(len(l.entries))
	}
	l.stats.Acquired++
	l.mu.Unlock()

	l.notify(Event{Type: EventAcquired, Handle: h, Object: obj, Owner: owner})
	return h, nil
}

// Get returns the object recorded under h.
func (l *Ledger) Get(h Handle) (dynbind.Object, bool) {
	if h == 0 {
		return nil, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := h - 1
	if int(idx) >= len(l.entries) {
		return nil, false
	}
	e := l.entries[idx]
	if !e.valid {
		return nil, false
	}
	return e.obj, true
}

// Release drops the reference recorded under h. The native Release runs
// outside the ledger lock because native code may re-enter the bridge.
func (l *Ledger) Release(h Handle) error {
	if h == 0 {
		return ErrInvalidHandle
	}

	l.mu.Lock()
	idx := h - 1
	if int(idx) >= len(l.entries) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
	}
	e := &l.entries[idx]
	if !e.valid {
		l.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrAlreadyReleased, h)
	}
	obj, owner := e.obj, e.owner
	e.valid = false
	e.obj = nil
	e.owner = ""
	l.freeList = append(l.freeList, h)
	l.stats.Released++
	l.mu.Unlock()

	obj.Release()
	l.notify(Event{Type: EventReleased, Handle: h, Object: obj, Owner: owner})
	return nil
}

// Len returns the number of outstanding references.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	for _, e := range l.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Stats returns acquire/release totals.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Each iterates over outstanding references.
func (l *Ledger) Each(fn func(Handle, dynbind.Object, string) bool) {
	l.mu.Lock()
	snapshot := make([]entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	for i, e := range snapshot {
		if e.valid {
			if !fn(Handle(i+1), e.obj, e.owner) {
				break
			}
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (l *Ledger) Subscribe(o Observer) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	l.observers = append(l.observers, o)
}

// Unsubscribe removes an observer.
func (l *Ledger) Unsubscribe(o Observer) {
	l.obsMu.Lock()
	defer l.obsMu.Unlock()
	for i, obs := range l.observers {
		if obs == o {
			l.observers = append(l.observers[:i], l.observers[i+1:]...)
			return
		}
	}
}

// Closed reports whether Close has been called.
func (l *Ledger) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close releases every outstanding reference and stops accepting new ones.
func (l *Ledger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	var handles []Handle
	for i, e := range l.entries {
		if e.valid {
			handles = append(handles, Handle(i+1))
		}
	}
	l.mu.Unlock()

	for _, h := range handles {
		if err := l.Release(h); err != nil && !errors.Is(err, ErrAlreadyReleased) {
			return err
		}
	}
	return nil
}

func (l *Ledger) notify(e Event) {
	l.obsMu.RLock()
	defer l.obsMu.RUnlock()
	for _, o := range l.observers {
		o.OnRefEvent(e)
	}
}
