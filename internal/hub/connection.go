package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Connection is the hub's handle for one connected client. The hub holds the
// only mutable reference; transports consume the outbound queue via Events()
// and observe eviction via Done().
type Connection struct {
	ID   uuid.UUID
	Role Role

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// caughtUp flips once history replay has completed; guarded by the
	// owning role's lock.
	caughtUp bool

	lastSeen int64 // unix nanos, updated by the transport read loop
}

func newConnection(role Role, queueDepth int) *Connection {
	c := &Connection{
		ID:   uuid.New(),
		Role: role,
		send: make(chan []byte, queueDepth),
		done: make(chan struct{}),
	}
	c.Touch()
	return c
}

// Events returns the outbound message queue. The transport drains it and
// writes each message to the client.
func (c *Connection) Events() <-chan []byte {
	return c.send
}

// Done is closed when the connection is unregistered or evicted.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Touch records client liveness.
func (c *Connection) Touch() {
	atomic.StoreInt64(&c.lastSeen, time.Now().UnixNano())
}

// LastSeen returns the last time the client showed signs of life.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastSeen))
}

// QueueDepth returns the current outbound queue occupancy.
func (c *Connection) QueueDepth() int {
	return len(c.send)
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue attempts a non-blocking push to the outbound queue. Returns false
// when the queue is full, which the hub treats as a slow consumer.
func (c *Connection) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return true // already closed, drop silently
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}
