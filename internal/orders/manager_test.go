package orders

import (
	"context"
	"errors"
	"testing"

	"tableside/internal/dietary"
	"tableside/internal/hub"
	"tableside/internal/models"
)

type fakeStore struct {
	orders       map[string]models.Order
	restrictions []dietary.Restriction
	saveErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]models.Order)}
}

func (f *fakeStore) SaveOrder(ctx context.Context, order *models.Order) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.orders[order.UUID] = *order
	return nil
}

func (f *fakeStore) LoadOrder(ctx context.Context, id string) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	copied := order
	return &copied, nil
}

func (f *fakeStore) ActiveOrders(ctx context.Context, tableID int) ([]models.Order, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.Status != string(models.OrderStatusCompleted) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (f *fakeStore) ResidentRestrictions(ctx context.Context, tableID, seatNumber int) ([]dietary.Restriction, error) {
	return f.restrictions, nil
}

type broadcastCall struct {
	target    hub.Role
	eventType hub.EventType
}

type fakeBroadcaster struct {
	calls []broadcastCall
}

func (f *fakeBroadcaster) Broadcast(target hub.Role, eventType hub.EventType, payload interface{}) {
	f.calls = append(f.calls, broadcastCall{target: target, eventType: eventType})
}

func (f *fakeBroadcaster) types() []hub.EventType {
	out := make([]hub.EventType, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.eventType
	}
	return out
}

func newTestManager() (*Manager, *fakeStore, *fakeBroadcaster) {
	store := newFakeStore()
	broadcaster := &fakeBroadcaster{}
	return NewManager(store, broadcaster, nil), store, broadcaster
}

func createPending(t *testing.T, m *Manager) *models.Order {
	t.Helper()
	order, err := m.CreateOrder(context.Background(), 5, nil, []models.OrderItem{{Name: "tomato soup"}})
	if err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}
	return order
}

func TestCreateOrder_BroadcastsCreatedEvent(t *testing.T) {
	m, _, broadcaster := newTestManager()

	order := createPending(t, m)

	if order.Status != string(models.OrderStatusPending) {
		t.Errorf("new order status = %q, want %q", order.Status, models.OrderStatusPending)
	}
	if order.UUID == "" {
		t.Error("new order has no ID")
	}

	types := broadcaster.types()
	if len(types) != 1 || types[0] != hub.EventOrderCreated {
		t.Errorf("broadcasts = %v, want [order_created]", types)
	}
}

func TestCreateOrder_DietaryAlertBroadcastOnMatch(t *testing.T) {
	m, store, broadcaster := newTestManager()
	store.restrictions = []dietary.Restriction{
		{ResidentName: "Margaret Hill", Name: "No nuts"},
	}

	order, err := m.CreateOrder(context.Background(), 5, nil,
		[]models.OrderItem{{Name: "peanut butter sandwich"}})
	if err != nil {
		t.Fatalf("CreateOrder() failed: %v", err)
	}

	if len(order.DietaryFlags) != 1 {
		t.Fatalf("order has %d dietary flags, want 1", len(order.DietaryFlags))
	}
	flag := order.DietaryFlags[0]
	if flag.Restriction != "No nuts" || flag.Severity != dietary.SeverityCritical {
		t.Errorf("flag = %+v, want No nuts / critical", flag)
	}

	types := broadcaster.types()
	want := []hub.EventType{hub.EventOrderCreated, hub.EventDietaryAlert}
	if len(types) != 2 || types[0] != want[0] || types[1] != want[1] {
		t.Errorf("broadcasts = %v, want %v", types, want)
	}
}

func TestCreateOrder_EmptyItemsRejected(t *testing.T) {
	m, _, broadcaster := newTestManager()

	if _, err := m.CreateOrder(context.Background(), 5, nil, nil); err == nil {
		t.Fatal("CreateOrder() with no items succeeded, want error")
	}
	if len(broadcaster.calls) != 0 {
		t.Errorf("broadcasts = %v, want none for rejected creation", broadcaster.types())
	}
}

func TestCreateOrder_StorageFailureIsNotBroadcast(t *testing.T) {
	m, store, broadcaster := newTestManager()
	store.saveErr = errors.New("disk full")

	if _, err := m.CreateOrder(context.Background(), 5, nil, []models.OrderItem{{Name: "soup"}}); err == nil {
		t.Fatal("CreateOrder() succeeded despite storage failure")
	}
	if len(broadcaster.calls) != 0 {
		t.Errorf("broadcasts = %v, want none after storage failure", broadcaster.types())
	}
}

func TestUpdateStatus_FullValidPath(t *testing.T) {
	m, _, _ := newTestManager()
	order := createPending(t, m)
	ctx := context.Background()

	path := []models.OrderStatus{
		models.OrderStatusInProgress,
		models.OrderStatusReady,
		models.OrderStatusCompleted,
	}
	for _, status := range path {
		updated, err := m.UpdateStatus(ctx, order.UUID, status)
		if err != nil {
			t.Fatalf("UpdateStatus(%s) failed: %v", status, err)
		}
		if updated.Status != string(status) {
			t.Errorf("status = %q, want %q", updated.Status, status)
		}

		if status == models.OrderStatusCompleted {
			if updated.CompletedAt == nil {
				t.Error("CompletedAt not set on completed order")
			}
		} else if updated.CompletedAt != nil {
			t.Errorf("CompletedAt set on %s order", status)
		}
	}
}

func TestUpdateStatus_InvalidTransitionRejectedWithoutSideEffects(t *testing.T) {
	m, store, broadcaster := newTestManager()
	order := createPending(t, m)
	broadcaster.calls = nil

	_, err := m.UpdateStatus(context.Background(), order.UUID, models.OrderStatusReady)

	var invalid *models.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("UpdateStatus() error = %v, want *InvalidTransitionError", err)
	}
	if invalid.From != models.OrderStatusPending || invalid.To != models.OrderStatusReady {
		t.Errorf("error transition = %s -> %s, want pending -> ready", invalid.From, invalid.To)
	}

	stored := store.orders[order.UUID]
	if stored.Status != string(models.OrderStatusPending) {
		t.Errorf("stored status = %q, want unchanged %q", stored.Status, models.OrderStatusPending)
	}
	if len(broadcaster.calls) != 0 {
		t.Errorf("broadcasts = %v, want none for rejected transition", broadcaster.types())
	}
}

func TestUpdateStatus_TerminalStateCannotRegress(t *testing.T) {
	m, _, _ := newTestManager()
	order := createPending(t, m)
	ctx := context.Background()

	for _, status := range []models.OrderStatus{
		models.OrderStatusInProgress, models.OrderStatusReady, models.OrderStatusCompleted,
	} {
		if _, err := m.UpdateStatus(ctx, order.UUID, status); err != nil {
			t.Fatalf("UpdateStatus(%s) failed: %v", status, err)
		}
	}

	var invalid *models.InvalidTransitionError
	if _, err := m.UpdateStatus(ctx, order.UUID, models.OrderStatusPending); !errors.As(err, &invalid) {
		t.Errorf("completed -> pending error = %v, want *InvalidTransitionError", err)
	}
}

func TestUpdateStatus_RepeatedStatusIsANoOp(t *testing.T) {
	m, _, broadcaster := newTestManager()
	order := createPending(t, m)
	ctx := context.Background()

	if _, err := m.UpdateStatus(ctx, order.UUID, models.OrderStatusInProgress); err != nil {
		t.Fatalf("UpdateStatus() failed: %v", err)
	}
	broadcaster.calls = nil

	repeated, err := m.UpdateStatus(ctx, order.UUID, models.OrderStatusInProgress)
	if err != nil {
		t.Fatalf("repeated UpdateStatus() failed: %v", err)
	}
	if repeated.Status != string(models.OrderStatusInProgress) {
		t.Errorf("status = %q, want %q", repeated.Status, models.OrderStatusInProgress)
	}
	if len(broadcaster.calls) != 0 {
		t.Errorf("broadcasts = %v, want none for duplicate retry", broadcaster.types())
	}
}

func TestUpdateStatus_UnknownStatusRejected(t *testing.T) {
	m, _, _ := newTestManager()
	order := createPending(t, m)

	var invalid *models.InvalidTransitionError
	if _, err := m.UpdateStatus(context.Background(), order.UUID, models.OrderStatus("vaporized")); !errors.As(err, &invalid) {
		t.Errorf("UpdateStatus(vaporized) error = %v, want *InvalidTransitionError", err)
	}
}

func TestFlagOrder_OverlayDoesNotTouchStatus(t *testing.T) {
	m, _, broadcaster := newTestManager()
	order := createPending(t, m)
	ctx := context.Background()

	if _, err := m.UpdateStatus(ctx, order.UUID, models.OrderStatusInProgress); err != nil {
		t.Fatalf("UpdateStatus() failed: %v", err)
	}
	broadcaster.calls = nil

	flagged, err := m.FlagOrder(ctx, order.UUID, "resident declined dish")
	if err != nil {
		t.Fatalf("FlagOrder() failed: %v", err)
	}

	if !flagged.HasOpenFlag {
		t.Error("HasOpenFlag = false after FlagOrder()")
	}
	if flagged.Status != string(models.OrderStatusInProgress) {
		t.Errorf("status = %q after flagging, want unchanged in_progress", flagged.Status)
	}
	if types := broadcaster.types(); len(types) != 1 || types[0] != hub.EventOrderFlagged {
		t.Errorf("broadcasts = %v, want [order_flagged]", types)
	}

	// Flag does not gate transitions.
	if _, err := m.UpdateStatus(ctx, order.UUID, models.OrderStatusReady); err != nil {
		t.Errorf("UpdateStatus() on flagged order failed: %v", err)
	}
}

func TestResolveFlag(t *testing.T) {
	m, _, broadcaster := newTestManager()
	order := createPending(t, m)
	ctx := context.Background()

	if _, err := m.FlagOrder(ctx, order.UUID, "wrong seat"); err != nil {
		t.Fatalf("FlagOrder() failed: %v", err)
	}

	resolved, err := m.ResolveFlag(ctx, order.UUID)
	if err != nil {
		t.Fatalf("ResolveFlag() failed: %v", err)
	}
	if resolved.HasOpenFlag || resolved.FlagReason != "" {
		t.Errorf("flag not cleared: %+v", resolved)
	}

	// Resolving an unflagged order is a no-op with no broadcast.
	broadcaster.calls = nil
	if _, err := m.ResolveFlag(ctx, order.UUID); err != nil {
		t.Fatalf("repeated ResolveFlag() failed: %v", err)
	}
	if len(broadcaster.calls) != 0 {
		t.Errorf("broadcasts = %v, want none for repeated resolve", broadcaster.types())
	}
}
