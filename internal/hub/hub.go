// Package hub fans out order events to live client connections grouped by
// role, replaying recent history to reconnecting clients. All shared state
// (connection sets, ring buffers) is owned by the hub and mutated only under
// per-role locks.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"tableside/internal/monitoring"
)

const (
	// DefaultHistorySize is the per-role ring buffer capacity.
	DefaultHistorySize = 20
	// DefaultQueueDepth is the outbound queue bound per connection; a
	// connection whose queue is full at enqueue time is evicted.
	DefaultQueueDepth = 50
	// DefaultHeartbeatInterval paces the liveness probe to all connections.
	DefaultHeartbeatInterval = 30 * time.Second
)

// Config sizes the hub.
type Config struct {
	HistorySize       int
	QueueDepth        int
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return c
}

// roleState holds everything the hub tracks for one role. Its mutex
// serializes broadcasts against history replay so a reconnecting client
// never misses or double-receives an event.
type roleState struct {
	mu      sync.Mutex
	seq     uint64
	history *ring
	conns   map[uuid.UUID]*Connection
}

// Hub maintains live connections grouped by role and broadcasts events to
// them. A single instance is shared by reference; there is no package-level
// hub.
type Hub struct {
	cfg     Config
	roles   map[Role]*roleState
	monitor *monitoring.Monitor
}

// New creates a hub with the given sizing. A nil monitor disables the
// runtime metrics map but not the prometheus collectors.
func New(cfg Config, monitor *monitoring.Monitor) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:     cfg,
		roles:   make(map[Role]*roleState, len(Roles)),
		monitor: monitor,
	}
	for _, role := range Roles {
		h.roles[role] = &roleState{
			history: newRing(cfg.HistorySize),
			conns:   make(map[uuid.UUID]*Connection),
		}
	}
	return h
}

// Register creates a connection for the given role. The caller should invoke
// ReplayHistory before expecting live events; until then broadcasts are only
// recorded in the role's history, not pushed to this connection.
func (h *Hub) Register(role Role) (*Connection, error) {
	state, ok := h.roles[role]
	if !ok {
		return nil, fmt.Errorf("unknown role: %s", role)
	}

	conn := newConnection(role, h.cfg.QueueDepth)

	state.mu.Lock()
	state.conns[conn.ID] = conn
	state.mu.Unlock()

	monitoring.HubConnections.WithLabelValues(string(role)).Inc()
	return conn, nil
}

// Unregister removes a connection and releases its delivery task. Idempotent:
// unregistering an already-removed connection is a no-op.
func (h *Hub) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	state, ok := h.roles[conn.Role]
	if !ok {
		return
	}

	state.mu.Lock()
	_, present := state.conns[conn.ID]
	delete(state.conns, conn.ID)
	state.mu.Unlock()

	conn.close()
	if present {
		monitoring.HubConnections.WithLabelValues(string(conn.Role)).Dec()
	}
}

// Broadcast constructs an event, appends it to the target role's history and
// pushes it to every caught-up connection of that role. RoleAll fans out to
// every role, each with its own sequence number. A slow consumer is evicted;
// delivery to the remaining connections is unaffected.
func (h *Hub) Broadcast(target Role, eventType EventType, payload interface{}) {
	if target == RoleAll {
		for _, role := range Roles {
			h.broadcastRole(role, eventType, payload)
		}
		return
	}
	h.broadcastRole(target, eventType, payload)
}

func (h *Hub) broadcastRole(role Role, eventType EventType, payload interface{}) {
	state, ok := h.roles[role]
	if !ok {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	state.seq++
	ev := Event{
		ID:         state.seq,
		Type:       eventType,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}

	// Heartbeats probe liveness only; retaining them would flush real
	// order events out of the replay window.
	if eventType != EventHeartbeat {
		state.history.Append(ev)
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		log.Printf("hub: dropping unmarshalable %s event for role %s: %v", eventType, role, err)
		return
	}

	monitoring.HubEventsTotal.WithLabelValues(string(role), string(eventType)).Inc()

	for id, conn := range state.conns {
		if !conn.caughtUp {
			continue
		}
		if !conn.enqueue(msg) {
			h.evictLocked(state, role, id, conn)
		}
	}
}

// evictLocked drops a slow consumer. Caller holds state.mu.
func (h *Hub) evictLocked(state *roleState, role Role, id uuid.UUID, conn *Connection) {
	delete(state.conns, id)
	conn.close()

	log.Printf("hub: evicted %s connection %s (outbound queue full at %d)", role, id, h.cfg.QueueDepth)
	monitoring.HubConnections.WithLabelValues(string(role)).Dec()
	monitoring.HubEvictionsTotal.WithLabelValues(string(role)).Inc()
	if h.monitor != nil {
		h.monitor.IncrCounter("hub_evictions")
	}
}

// ReplayHistory pushes the full retained history for the connection's role,
// in original order, then marks the connection caught up so live broadcasts
// resume exactly where replay ended. Replaying twice is a no-op.
func (h *Hub) ReplayHistory(conn *Connection) error {
	state, ok := h.roles[conn.Role]
	if !ok {
		return fmt.Errorf("unknown role: %s", conn.Role)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if _, present := state.conns[conn.ID]; !present {
		return fmt.Errorf("connection %s is not registered", conn.ID)
	}
	if conn.caughtUp {
		return nil
	}

	for _, ev := range state.history.Snapshot() {
		msg, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if !conn.enqueue(msg) {
			h.evictLocked(state, conn.Role, conn.ID, conn)
			return fmt.Errorf("connection %s overflowed during replay", conn.ID)
		}
	}
	conn.caughtUp = true
	return nil
}

// Run drives the heartbeat loop until the context is cancelled. Heartbeats
// are delivered through the same bounded queues as broadcasts; a connection
// that cannot absorb one is presumed dead and unregistered.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.Broadcast(RoleAll, EventHeartbeat, nil)
		}
	}
}

func (h *Hub) closeAll() {
	for role, state := range h.roles {
		state.mu.Lock()
		for id, conn := range state.conns {
			delete(state.conns, id)
			conn.close()
			monitoring.HubConnections.WithLabelValues(string(role)).Dec()
		}
		state.mu.Unlock()
	}
}

// ConnectionCount returns the number of live connections for a role.
func (h *Hub) ConnectionCount(role Role) int {
	state, ok := h.roles[role]
	if !ok {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.conns)
}

// HistoryLen returns the number of retained events for a role.
func (h *Hub) HistoryLen(role Role) int {
	state, ok := h.roles[role]
	if !ok {
		return 0
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.history.Len()
}
