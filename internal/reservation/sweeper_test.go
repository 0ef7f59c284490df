package reservation

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestSweeper_ExpiresDueReservationsAndRestoresStock(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, 10*time.Millisecond)
	ctx := context.Background()

	const sku = "SKU-SWEEP"
	if err := engine.Initialize(ctx, sku, 5); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	record, err := engine.Reserve(ctx, sku, "user-1", 2)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var expiredCalls []MutationResult
	sweeper := NewSweeper(engine, store, time.Millisecond, 10)
	sweeper.OnExpired(func(result MutationResult, reservationID string) {
		expiredCalls = append(expiredCalls, result)
	})

	time.Sleep(20 * time.Millisecond)
	sweeper.sweepOnce(ctx, slog.Default())

	if len(expiredCalls) != 1 {
		t.Fatalf("onExpired called %d times, want 1", len(expiredCalls))
	}
	if expiredCalls[0].SKU != sku || expiredCalls[0].Quantity != 2 {
		t.Fatalf("unexpected expired mutation result: %+v", expiredCalls[0])
	}

	available, _, err := engine.Status(ctx, sku)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if available != 5 {
		t.Fatalf("available after sweep = %d, want 5", available)
	}

	if err := engine.Cancel(ctx, record.ReservationID, "user-1"); err == nil {
		t.Fatalf("expected not-found cancelling an already-expired reservation")
	} else if rerr, ok := AsError(err); !ok || rerr.Kind != KindNotFound {
		t.Fatalf("err = %v, want KindNotFound", err)
	}
}

func TestSweeper_IgnoresNotYetDueReservations(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	ctx := context.Background()

	const sku = "SKU-SWEEP-FUTURE"
	if err := engine.Initialize(ctx, sku, 3); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, err := engine.Reserve(ctx, sku, "user-1", 1); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	called := false
	sweeper := NewSweeper(engine, store, time.Millisecond, 10)
	sweeper.OnExpired(func(result MutationResult, reservationID string) { called = true })

	sweeper.sweepOnce(ctx, slog.Default())

	if called {
		t.Fatalf("onExpired invoked for a reservation that has not reached its expiry yet")
	}

	available, _, err := engine.Status(ctx, sku)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if available != 2 {
		t.Fatalf("available = %d, want 2 (reservation should still be held)", available)
	}
}
