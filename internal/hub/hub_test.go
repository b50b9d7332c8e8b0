package hub

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestHub(queueDepth int) *Hub {
	return New(Config{
		HistorySize: DefaultHistorySize,
		QueueDepth:  queueDepth,
		// Long interval so heartbeats never fire mid-test.
		HeartbeatInterval: time.Hour,
	}, nil)
}

// recv pops one queued event off a connection handle, failing the test if
// nothing is queued.
func recv(t *testing.T, conn *Connection) Event {
	t.Helper()
	select {
	case msg := <-conn.Events():
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event queued on connection")
		return Event{}
	}
}

func mustRegister(t *testing.T, h *Hub, role Role) *Connection {
	t.Helper()
	conn, err := h.Register(role)
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", role, err)
	}
	return conn
}

func TestRegister_UnknownRole(t *testing.T) {
	h := newTestHub(DefaultQueueDepth)
	if _, err := h.Register(Role("janitor")); err == nil {
		t.Error("Register(\"janitor\") succeeded, want error")
	}
	if _, err := h.Register(RoleAll); err == nil {
		t.Error("Register(RoleAll) succeeded, want error")
	}
}

func TestBroadcast_DeliversToCaughtUpConnections(t *testing.T) {
	h := newTestHub(DefaultQueueDepth)
	conn := mustRegister(t, h, RoleKitchen)

	if err := h.ReplayHistory(conn); err != nil {
		t.Fatalf("ReplayHistory() failed: %v", err)
	}

	h.Broadcast(RoleKitchen, EventOrderCreated, map[string]string{"order": "o-1"})

	ev := recv(t, conn)
	if ev.Type != EventOrderCreated {
		t.Errorf("event type = %q, want %q", ev.Type, EventOrderCreated)
	}
	if ev.ID != 1 {
		t.Errorf("event ID = %d, want 1", ev.ID)
	}
}

func TestBroadcast_SkipsConnectionsAwaitingReplay(t *testing.T) {
	h := newTestHub(DefaultQueueDepth)
	conn := mustRegister(t, h, RoleKitchen)

	// Broadcast lands in history only; the connection has not replayed yet.
	h.Broadcast(RoleKitchen, EventOrderCreated, nil)

	if depth := conn.QueueDepth(); depth != 0 {
		t.Fatalf("queue depth before replay = %d, want 0", depth)
	}

	if err := h.ReplayHistory(conn); err != nil {
		t.Fatalf("ReplayHistory() failed: %v", err)
	}

	// Replay delivers the missed event exactly once.
	ev := recv(t, conn)
	if ev.ID != 1 || ev.Type != EventOrderCreated {
		t.Errorf("replayed event = %+v, want ID 1 %s", ev, EventOrderCreated)
	}
	if depth := conn.QueueDepth(); depth != 0 {
		t.Errorf("queue depth after replay = %d, want 0 (no duplicates)", depth)
	}
}

func TestReplay_ReconnectReceivesMissedEventsInOrderExactlyOnce(t *testing.T) {
	h := newTestHub(DefaultQueueDepth)

	first := mustRegister(t, h, RoleKitchen)
	if err := h.ReplayHistory(first); err != nil {
		t.Fatalf("ReplayHistory() failed: %v", err)
	}

	h.Broadcast(RoleKitchen, EventOrderCreated, nil)
	h.Broadcast(RoleKitchen, EventOrderStatusChanged, nil)

	h.Unregister(first)

	// Events broadcast while offline.
	h.Broadcast(RoleKitchen, EventOrderStatusChanged, nil)
	h.Broadcast(RoleKitchen, EventOrderFlagged, nil)

	second := mustRegister(t, h, RoleKitchen)
	if err := h.ReplayHistory(second); err != nil {
		t.Fatalf("ReplayHistory() failed: %v", err)
	}

	for want := uint64(1); want <= 4; want++ {
		ev := recv(t, second)
		if ev.ID != want {
			t.Fatalf("replayed event ID = %d, want %d", ev.ID, want)
		}
	}

	// Replaying again must not duplicate anything.
	if err := h.ReplayHistory(second); err != nil {
		t.Fatalf("second ReplayHistory() failed: %v", err)
	}
	if depth := second.QueueDepth(); depth != 0 {
		t.Errorf("queue depth after repeat replay = %d, want 0", depth)
	}

	// Live events resume after the replayed suffix.
	h.Broadcast(RoleKitchen, EventOrderStatusChanged, nil)
	if ev := recv(t, second); ev.ID != 5 {
		t.Errorf("live event after replay ID = %d, want 5", ev.ID)
	}
}

func TestRing_OldestEventEvictedAtCapacity(t *testing.T) {
	h := New(Config{HistorySize: 20, QueueDepth: 50, HeartbeatInterval: time.Hour}, nil)

	for i := 0; i < 21; i++ {
		h.Broadcast(RoleKitchen, EventOrderStatusChanged, nil)
	}

	if got := h.HistoryLen(RoleKitchen); got != 20 {
		t.Fatalf("history length = %d, want 20", got)
	}

	conn := mustRegister(t, h, RoleKitchen)
	if err := h.ReplayHistory(conn); err != nil {
		t.Fatalf("ReplayHistory() failed: %v", err)
	}

	// Exactly the 20 retained events, starting from the second ever sent.
	for want := uint64(2); want <= 21; want++ {
		ev := recv(t, conn)
		if ev.ID != want {
			t.Fatalf("replayed event ID = %d, want %d", ev.ID, want)
		}
	}
	if depth := conn.QueueDepth(); depth != 0 {
		t.Errorf("queue depth after replay = %d, want 0", depth)
	}
}

func TestBroadcast_SlowConsumerEvictedOthersUnaffected(t *testing.T) {
	h := New(Config{HistorySize: 20, QueueDepth: 2, HeartbeatInterval: time.Hour}, nil)

	stalled := mustRegister(t, h, RoleKitchen)
	healthy := mustRegister(t, h, RoleKitchen)
	if err := h.ReplayHistory(stalled); err != nil {
		t.Fatalf("ReplayHistory(stalled) failed: %v", err)
	}
	if err := h.ReplayHistory(healthy); err != nil {
		t.Fatalf("ReplayHistory(healthy) failed: %v", err)
	}

	// The healthy consumer drains after every broadcast; the stalled one
	// never does and overflows its 2-slot queue on the third event.
	for i := 0; i < 3; i++ {
		h.Broadcast(RoleKitchen, EventOrderStatusChanged, nil)
		recv(t, healthy)
	}

	select {
	case <-stalled.Done():
	default:
		t.Error("stalled connection was not evicted")
	}

	if got := h.ConnectionCount(RoleKitchen); got != 1 {
		t.Errorf("connection count = %d, want 1 (healthy only)", got)
	}

	// Delivery to the survivor keeps working.
	h.Broadcast(RoleKitchen, EventOrderCreated, nil)
	if ev := recv(t, healthy); ev.Type != EventOrderCreated {
		t.Errorf("survivor received %q, want %q", ev.Type, EventOrderCreated)
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	h := newTestHub(DefaultQueueDepth)
	conn := mustRegister(t, h, RoleAdmin)

	h.Unregister(conn)
	h.Unregister(conn) // second call must be a no-op
	h.Unregister(nil)

	if got := h.ConnectionCount(RoleAdmin); got != 0 {
		t.Errorf("connection count = %d, want 0", got)
	}
}

func TestHeartbeat_NotRetainedInHistory(t *testing.T) {
	h := newTestHub(DefaultQueueDepth)
	conn := mustRegister(t, h, RoleServer)
	if err := h.ReplayHistory(conn); err != nil {
		t.Fatalf("ReplayHistory() failed: %v", err)
	}

	h.Broadcast(RoleAll, EventHeartbeat, nil)

	if ev := recv(t, conn); ev.Type != EventHeartbeat {
		t.Errorf("event type = %q, want %q", ev.Type, EventHeartbeat)
	}
	for _, role := range Roles {
		if got := h.HistoryLen(role); got != 0 {
			t.Errorf("history length for %s = %d, want 0 (heartbeats are not replayable)", role, got)
		}
	}
}

func TestBroadcast_AllRolesGetIndependentSequences(t *testing.T) {
	h := newTestHub(DefaultQueueDepth)

	conns := make(map[Role]*Connection)
	for _, role := range Roles {
		conn := mustRegister(t, h, role)
		if err := h.ReplayHistory(conn); err != nil {
			t.Fatalf("ReplayHistory(%s) failed: %v", role, err)
		}
		conns[role] = conn
	}

	h.Broadcast(RoleAll, EventOrderCreated, nil)

	for role, conn := range conns {
		ev := recv(t, conn)
		if ev.ID != 1 {
			t.Errorf("%s sequence starts at %d, want 1", role, ev.ID)
		}
	}
}
