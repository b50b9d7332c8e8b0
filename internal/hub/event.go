package hub

import "time"

// Role identifies a class of client consuming a distinct event stream.
type Role string

const (
	RoleServer  Role = "server"
	RoleKitchen Role = "kitchen"
	RoleAdmin   Role = "admin"

	// RoleAll is a broadcast target, never a connection role.
	RoleAll Role = "all"
)

// Roles lists every connectable role in broadcast order.
var Roles = []Role{RoleServer, RoleKitchen, RoleAdmin}

// ValidRole reports whether r names a connectable role.
func ValidRole(r Role) bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// EventType enumerates the closed set of broadcastable event kinds.
type EventType string

const (
	EventOrderCreated       EventType = "order_created"
	EventOrderStatusChanged EventType = "order_status_changed"
	EventOrderFlagged       EventType = "order_flagged"
	EventDietaryAlert       EventType = "dietary_alert"
	EventHeartbeat          EventType = "heartbeat"
)

// Event is an immutable record of something that happened to an order or
// connection. ID is a per-role monotonic sequence number.
type Event struct {
	ID         uint64      `json:"id"`
	Type       EventType   `json:"type"`
	Payload    interface{} `json:"payload,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}
