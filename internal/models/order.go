package models

import (
	"fmt"
	"time"

	"github.com/jinzhu/gorm"
)

// Order represents a dining order placed for a table seat
type Order struct {
	gorm.Model
	UUID         string        `gorm:"unique_index" json:"id"`
	TableID      int           `json:"table_id"`
	SeatNumber   *int          `json:"seat_number,omitempty"`
	Items        []OrderItem   `gorm:"foreignkey:OrderID" json:"items"`
	Status       string        `json:"status"`
	HasOpenFlag  bool          `json:"has_open_flag"`
	FlagReason   string        `json:"flag_reason,omitempty"`
	DietaryFlags []DietaryFlag `gorm:"foreignkey:OrderID" json:"dietary_flags,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// OrderItem represents an item in an order
type OrderItem struct {
	gorm.Model
	OrderID uint   `json:"-"`
	Name    string `json:"name"`
	Notes   string `json:"notes,omitempty"`
}

// DietaryFlag records a dietary alert attached to an order at creation time
type DietaryFlag struct {
	gorm.Model
	OrderID      uint   `json:"-"`
	ResidentName string `json:"resident_name"`
	Restriction  string `json:"restriction"`
	Severity     string `json:"severity"`
}

// OrderStatus represents the possible states of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusReady      OrderStatus = "ready"
	OrderStatusCompleted  OrderStatus = "completed"
)

// validTransitions maps each status to the statuses reachable from it.
// Flagging is an overlay attribute (HasOpenFlag), not a status, so it never
// appears here and never gates progression.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusInProgress},
	OrderStatusInProgress: {OrderStatusReady},
	OrderStatusReady:      {OrderStatusCompleted},
	OrderStatusCompleted:  {},
}

// KnownStatus reports whether s names a defined order status.
func KnownStatus(s OrderStatus) bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransition reports whether an order may move from one status to another.
// A repeated status is not a valid transition; callers treat it as a no-op.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned when a status change violates the
// order state machine. The order is left unchanged.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for order %s: %s -> %s", e.OrderID, e.From, e.To)
}
