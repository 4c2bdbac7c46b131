package refcount

import "github.com/wippyai/dynbind"

// Handle identifies one outstanding native reference in a Ledger.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType identifies a reference lifecycle notification.
type EventType uint8

const (
	EventAcquired EventType = iota
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventAcquired:
		return "acquired"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event represents a reference lifecycle event.
type Event struct {
	Object dynbind.Object
	Owner  string
	Handle Handle
	Type   EventType
}

// Observer receives notifications about reference lifecycle events.
type Observer interface {
	OnRefEvent(Event)
}

// Stats counts ledger traffic since creation.
type Stats struct {
	Acquired uint64
	Released uint64
}

// Outstanding returns references acquired but not yet released.
func (s Stats) Outstanding() uint64 {
	return s.Acquired - s.Released
}
