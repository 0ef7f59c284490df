package reservation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEngine_ReserveHighConcurrencyDoesNotOversell(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	ctx := context.Background()

	const sku = "SKU-RACE"
	const initialStock = 10
	const requests = 200

	if err := engine.Initialize(ctx, sku, initialStock); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var succeeded int32
	var insufficient int32
	var unexpected int32

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start

			_, err := engine.Reserve(ctx, sku, "user-1", 1)
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
				return
			}
			if rerr, ok := AsError(err); ok && rerr.Kind == KindInsufficient {
				atomic.AddInt32(&insufficient, 1)
				return
			}
			atomic.AddInt32(&unexpected, 1)
		}(i)
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&unexpected); got != 0 {
		t.Fatalf("unexpected errors during concurrent reserve: %d", got)
	}
	if got := atomic.LoadInt32(&succeeded); got != initialStock {
		t.Fatalf("successful reservations = %d, want %d", got, initialStock)
	}
	if got := atomic.LoadInt32(&insufficient); got != requests-initialStock {
		t.Fatalf("insufficient-stock responses = %d, want %d", got, requests-initialStock)
	}

	available, _, err := engine.Status(ctx, sku)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if available != 0 {
		t.Fatalf("available = %d, want 0", available)
	}
}

func TestEngine_ReserveLastUnitExactlyOneWinner(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	ctx := context.Background()

	const sku = "SKU-LAST"
	if err := engine.Initialize(ctx, sku, 1); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	const contenders = 50
	var wins int32

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := engine.Reserve(ctx, sku, "user-1", 1); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}

func TestEngine_ReserveNotInitialized(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, "SKU-UNKNOWN", "user-1", 1)
	rerr, ok := AsError(err)
	if !ok || rerr.Kind != KindNotInitialized {
		t.Fatalf("err = %v, want KindNotInitialized", err)
	}
}

func TestEngine_CancelRestoresStockAndRejectsWrongOwner(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	ctx := context.Background()

	const sku = "SKU-CANCEL"
	if err := engine.Initialize(ctx, sku, 5); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	record, err := engine.Reserve(ctx, sku, "owner", 2)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := engine.Cancel(ctx, record.ReservationID, "someone-else"); err == nil {
		t.Fatalf("expected forbidden error cancelling another user's reservation")
	} else if rerr, ok := AsError(err); !ok || rerr.Kind != KindForbidden {
		t.Fatalf("err = %v, want KindForbidden", err)
	}

	if err := engine.Cancel(ctx, record.ReservationID, "owner"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	available, _, err := engine.Status(ctx, sku)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if available != 5 {
		t.Fatalf("available after cancel = %d, want 5", available)
	}

	if err := engine.Cancel(ctx, record.ReservationID, "owner"); err == nil {
		t.Fatalf("expected not-found error cancelling an already-cancelled reservation")
	} else if rerr, ok := AsError(err); !ok || rerr.Kind != KindNotFound {
		t.Fatalf("err = %v, want KindNotFound", err)
	}
}

func TestEngine_InitializeRejectsNegativeQuantity(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	ctx := context.Background()

	err := engine.Initialize(ctx, "SKU-NEG", -1)
	if rerr, ok := AsError(err); !ok || rerr.Kind != KindInvalidInput {
		t.Fatalf("err = %v, want KindInvalidInput", err)
	}
}
