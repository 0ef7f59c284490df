package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flashreserve/reservation-core/internal/catalog"
	"github.com/flashreserve/reservation-core/internal/reservation"
)

// fakeHotStore implements reservation.HotStore with just enough behavior
// to drive Coordinator.Confirm: a single reservation record that
// ConfirmFetchDelete consumes exactly once, mirroring the real store's
// atomic fetch-then-delete semantics.
type fakeHotStore struct {
	record       reservation.ReservationRecord
	hasRecord    bool
	confirmCalls int
}

func (f *fakeHotStore) Initialize(ctx context.Context, sku string, quantity int64) error {
	return nil
}
func (f *fakeHotStore) Status(ctx context.Context, sku string) (int64, bool, error) {
	return 0, false, nil
}
func (f *fakeHotStore) Reserve(ctx context.Context, reservationID, sku, userID string, quantity int64, now time.Time, ttl time.Duration) (reservation.ReserveResult, error) {
	return reservation.ReserveResult{}, nil
}
func (f *fakeHotStore) Cancel(ctx context.Context, reservationID, userID string) (reservation.MutationResult, error) {
	return reservation.MutationResult{}, nil
}
func (f *fakeHotStore) Expire(ctx context.Context, reservationID string) (reservation.MutationResult, error) {
	return reservation.MutationResult{}, nil
}
func (f *fakeHotStore) ConfirmFetchDelete(ctx context.Context, reservationID, userID string) (reservation.MutationResult, error) {
	f.confirmCalls++
	if !f.hasRecord || f.record.ReservationID != reservationID {
		return reservation.MutationResult{Status: reservation.MutationNotFound}, nil
	}
	if f.record.UserID != userID {
		return reservation.MutationResult{Status: reservation.MutationForbidden}, nil
	}
	result := reservation.MutationResult{
		Status:   reservation.MutationOK,
		SKU:      f.record.SKU,
		Quantity: f.record.Quantity,
		UserID:   f.record.UserID,
	}
	f.hasRecord = false
	return result, nil
}
func (f *fakeHotStore) PopDueExpirations(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	return nil, nil
}
func (f *fakeHotStore) AcquireIdempotencySlot(ctx context.Context, key, placeholderValue string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (f *fakeHotStore) GetIdempotencySlot(ctx context.Context, key string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeHotStore) SetIdempotencySlot(ctx context.Context, key, value string, ttl time.Duration) error {
	return nil
}
func (f *fakeHotStore) ReleaseIdempotencySlot(ctx context.Context, key string) error {
	return nil
}

type fakeOrderStore struct {
	inserted []Order
}

func (s *fakeOrderStore) InsertOrder(ctx context.Context, order Order) error {
	s.inserted = append(s.inserted, order)
	return nil
}

type fakeAuditSink struct {
	events []string
}

func (s *fakeAuditSink) Record(eventType, userID, sku, reservationID string, details map[string]interface{}) {
	s.events = append(s.events, eventType)
}

func newTestCoordinator(store *fakeHotStore) (*Coordinator, *fakeOrderStore, *fakeAuditSink) {
	cat := catalog.New(map[string]decimal.Decimal{
		"SKU-X": decimal.NewFromFloat(10.00),
	})
	orders := &fakeOrderStore{}
	audit := &fakeAuditSink{}
	return NewCoordinator(store, cat, orders, audit), orders, audit
}

func TestCoordinator_ConfirmWritesOrderAndAudit(t *testing.T) {
	store := &fakeHotStore{
		hasRecord: true,
		record: reservation.ReservationRecord{
			ReservationID: "rsv_1",
			SKU:           "SKU-X",
			UserID:        "user-1",
			Quantity:      3,
		},
	}
	coordinator, orders, audit := newTestCoordinator(store)

	order, err := coordinator.Confirm(context.Background(), "rsv_1", "user-1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if order.SKU != "SKU-X" || order.Quantity != 3 {
		t.Fatalf("unexpected order: %+v", order)
	}
	want := decimal.NewFromFloat(30.00)
	if !order.TotalAmount.Equal(want) {
		t.Fatalf("total = %s, want %s", order.TotalAmount, want)
	}
	if len(orders.inserted) != 1 {
		t.Fatalf("orders inserted = %d, want 1", len(orders.inserted))
	}
	if len(audit.events) != 1 || audit.events[0] != "confirm" {
		t.Fatalf("audit events = %v, want [confirm]", audit.events)
	}
}

func TestCoordinator_ConfirmRejectsWrongOwner(t *testing.T) {
	store := &fakeHotStore{
		hasRecord: true,
		record: reservation.ReservationRecord{
			ReservationID: "rsv_1",
			SKU:           "SKU-X",
			UserID:        "owner",
			Quantity:      1,
		},
	}
	coordinator, orders, _ := newTestCoordinator(store)

	_, err := coordinator.Confirm(context.Background(), "rsv_1", "not-the-owner")
	rerr, ok := reservation.AsError(err)
	if !ok || rerr.Kind != reservation.KindForbidden {
		t.Fatalf("err = %v, want KindForbidden", err)
	}
	if len(orders.inserted) != 0 {
		t.Fatalf("order should not be recorded for a forbidden confirm")
	}
}

// TestCoordinator_ConfirmVsExpireRace exercises the race spec.md §9 calls
// out: a reservation already consumed (confirmed or swept) must resolve
// to NOT_FOUND on a second confirm attempt, never a double sale. The
// fake's Expire leaves the record alone, so here a first confirm consumes
// it; the second confirm then takes the same not_found path as a confirm
// that lost the race to the sweeper.
func TestCoordinator_ConfirmVsExpireRace(t *testing.T) {
	store := &fakeHotStore{
		hasRecord: true,
		record: reservation.ReservationRecord{
			ReservationID: "rsv_1",
			SKU:           "SKU-X",
			UserID:        "user-1",
			Quantity:      1,
		},
	}
	coordinator, orders, _ := newTestCoordinator(store)

	if _, err := coordinator.Confirm(context.Background(), "rsv_1", "user-1"); err != nil {
		t.Fatalf("first confirm: %v", err)
	}

	_, err := coordinator.Confirm(context.Background(), "rsv_1", "user-1")
	rerr, ok := reservation.AsError(err)
	if !ok || rerr.Kind != reservation.KindNotFound {
		t.Fatalf("second confirm err = %v, want KindNotFound", err)
	}
	if len(orders.inserted) != 1 {
		t.Fatalf("orders inserted = %d, want exactly 1 (no double sale)", len(orders.inserted))
	}
	if store.confirmCalls != 2 {
		t.Fatalf("confirmCalls = %d, want 2", store.confirmCalls)
	}
}
