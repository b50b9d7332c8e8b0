package hub

// ring is a bounded FIFO history of broadcast events. When full, appending
// evicts the oldest entry. Not safe for concurrent use; callers hold the
// owning role's lock.
type ring struct {
	entries []Event
	size    int
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 1
	}
	return &ring{size: size}
}

// Append adds an event, evicting the oldest entry once the buffer is full.
func (r *ring) Append(ev Event) {
	if len(r.entries) == r.size {
		copy(r.entries, r.entries[1:])
		r.entries[len(r.entries)-1] = ev
		return
	}
	r.entries = append(r.entries, ev)
}

// Snapshot returns the retained events in original order.
func (r *ring) Snapshot() []Event {
	out := make([]Event, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of retained events.
func (r *ring) Len() int {
	return len(r.entries)
}
