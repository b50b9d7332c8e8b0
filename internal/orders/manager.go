// Package orders owns the order state machine and coordinates its side
// effects: dietary checks on creation, persistence, and event broadcast.
// Every mutation persists before it broadcasts; an order that failed to
// persist is never announced.
package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tableside/internal/dietary"
	"tableside/internal/hub"
	"tableside/internal/models"
	"tableside/internal/monitoring"
)

// Storage is the persistence collaborator consumed by the manager.
type Storage interface {
	SaveOrder(ctx context.Context, order *models.Order) error
	LoadOrder(ctx context.Context, id string) (*models.Order, error)
	ActiveOrders(ctx context.Context, tableID int) ([]models.Order, error)
	ResidentRestrictions(ctx context.Context, tableID, seatNumber int) ([]dietary.Restriction, error)
}

// Broadcaster announces order events to connected clients.
type Broadcaster interface {
	Broadcast(target hub.Role, eventType hub.EventType, payload interface{})
}

// Manager enforces order lifecycle transitions. It is the only component
// that mutates orders.
type Manager struct {
	store   Storage
	hub     Broadcaster
	monitor *monitoring.Monitor
}

// NewManager creates an order lifecycle manager.
func NewManager(store Storage, broadcaster Broadcaster, monitor *monitoring.Monitor) *Manager {
	return &Manager{store: store, hub: broadcaster, monitor: monitor}
}

// CreateOrder runs the items through the dietary matcher, persists a new
// pending order and broadcasts order_created to every role. A dietary hit
// additionally broadcasts dietary_alert.
func (m *Manager) CreateOrder(ctx context.Context, tableID int, seatNumber *int, items []models.OrderItem) (*models.Order, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("order must contain at least one item")
	}

	seat := 0
	if seatNumber != nil {
		seat = *seatNumber
	}
	restrictions, err := m.store.ResidentRestrictions(ctx, tableID, seat)
	if err != nil {
		return nil, fmt.Errorf("dietary lookup failed: %w", err)
	}

	alerts := dietary.Match(itemText(items), restrictions)

	order := &models.Order{
		UUID:       uuid.NewString(),
		TableID:    tableID,
		SeatNumber: seatNumber,
		Items:      items,
		Status:     string(models.OrderStatusPending),
	}
	for _, alert := range alerts {
		order.DietaryFlags = append(order.DietaryFlags, models.DietaryFlag{
			ResidentName: alert.ResidentName,
			Restriction:  alert.Restriction,
			Severity:     alert.Severity,
		})
	}

	if err := m.store.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	if m.monitor != nil {
		m.monitor.IncrCounter("orders_created")
	}
	m.hub.Broadcast(hub.RoleAll, hub.EventOrderCreated, order)
	if len(alerts) > 0 {
		m.hub.Broadcast(hub.RoleAll, hub.EventDietaryAlert, map[string]interface{}{
			"order_id": order.UUID,
			"alerts":   alerts,
		})
	}
	return order, nil
}

// UpdateStatus validates the transition, persists and broadcasts
// order_status_changed. Repeating the current status is a no-op returning
// the unchanged order, so duplicate client retries are harmless. An invalid
// transition fails without side effects.
func (m *Manager) UpdateStatus(ctx context.Context, orderID string, newStatus models.OrderStatus) (*models.Order, error) {
	order, err := m.store.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	current := models.OrderStatus(order.Status)
	if current == newStatus {
		return order, nil
	}

	if !models.KnownStatus(newStatus) || !models.CanTransition(current, newStatus) {
		return nil, &models.InvalidTransitionError{OrderID: orderID, From: current, To: newStatus}
	}

	order.Status = string(newStatus)
	if newStatus == models.OrderStatusCompleted {
		now := time.Now().UTC()
		order.CompletedAt = &now
	} else {
		order.CompletedAt = nil
	}

	if err := m.store.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	monitoring.OrderTransitionsTotal.WithLabelValues(string(newStatus)).Inc()
	m.hub.Broadcast(hub.RoleAll, hub.EventOrderStatusChanged, order)
	return order, nil
}

// FlagOrder marks the open-flag attribute and broadcasts order_flagged.
// Status is untouched: a flag annotates the order, it does not gate
// progression.
func (m *Manager) FlagOrder(ctx context.Context, orderID, reason string) (*models.Order, error) {
	order, err := m.store.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order.HasOpenFlag = true
	order.FlagReason = reason

	if err := m.store.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	m.hub.Broadcast(hub.RoleAll, hub.EventOrderFlagged, order)
	return order, nil
}

// ResolveFlag clears the open flag, returning the order to its underlying
// status view.
func (m *Manager) ResolveFlag(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := m.store.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !order.HasOpenFlag {
		return order, nil
	}

	order.HasOpenFlag = false
	order.FlagReason = ""

	if err := m.store.SaveOrder(ctx, order); err != nil {
		return nil, err
	}

	m.hub.Broadcast(hub.RoleAll, hub.EventOrderFlagged, order)
	return order, nil
}

// GetOrder fetches one order.
func (m *Manager) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return m.store.LoadOrder(ctx, orderID)
}

// GetActiveOrders lists non-completed orders for a table (or all tables
// when tableID is zero).
func (m *Manager) GetActiveOrders(ctx context.Context, tableID int) ([]models.Order, error) {
	return m.store.ActiveOrders(ctx, tableID)
}

// CheckDietary matches free text against the restrictions known for a table
// seat. Used by the transcription flow to annotate results before an order
// is confirmed.
func (m *Manager) CheckDietary(ctx context.Context, tableID, seatNumber int, text string) ([]dietary.Alert, error) {
	restrictions, err := m.store.ResidentRestrictions(ctx, tableID, seatNumber)
	if err != nil {
		return nil, fmt.Errorf("dietary lookup failed: %w", err)
	}
	return dietary.Match(text, restrictions), nil
}

func itemText(items []models.OrderItem) string {
	parts := make([]string, 0, len(items)*2)
	for _, item := range items {
		parts = append(parts, item.Name)
		if item.Notes != "" {
			parts = append(parts, item.Notes)
		}
	}
	return strings.Join(parts, " ")
}
