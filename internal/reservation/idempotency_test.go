package reservation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestIdempotencyLayer_RetryReplaysRecordedOutcome(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	layer := NewIdempotencyLayer(engine, store, time.Minute)
	ctx := context.Background()

	const sku = "SKU-IDEMPOTENT"
	if err := engine.Initialize(ctx, sku, 3); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	first, err := layer.Reserve(ctx, "client-key-1", sku, "user-1", 1)
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	second, err := layer.Reserve(ctx, "client-key-1", sku, "user-1", 1)
	if err != nil {
		t.Fatalf("retried reserve: %v", err)
	}

	if first.ReservationID != second.ReservationID {
		t.Fatalf("retry minted a new reservation: first=%s second=%s", first.ReservationID, second.ReservationID)
	}

	available, _, err := engine.Status(ctx, sku)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if available != 2 {
		t.Fatalf("available = %d, want 2 (stock decremented only once)", available)
	}
}

func TestIdempotencyLayer_ReplaysRecordedError(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	layer := NewIdempotencyLayer(engine, store, time.Minute)
	ctx := context.Background()

	const sku = "SKU-IDEMPOTENT-ERR"
	if err := engine.Initialize(ctx, sku, 1); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if _, err := layer.Reserve(ctx, "key-a", sku, "user-1", 2); err == nil {
		t.Fatalf("expected insufficient-stock error on first attempt")
	}

	_, err := layer.Reserve(ctx, "key-a", sku, "user-1", 2)
	rerr, ok := AsError(err)
	if !ok || rerr.Kind != KindInsufficient {
		t.Fatalf("retried err = %v, want replayed KindInsufficient", err)
	}
}

func TestIdempotencyLayer_ConcurrentDuplicatesObserveOneMutation(t *testing.T) {
	store := newFakeHotStore()
	engine := NewEngine(store, time.Minute)
	layer := NewIdempotencyLayer(engine, store, time.Minute)
	ctx := context.Background()

	const sku = "SKU-IDEMPOTENT-RACE"
	if err := engine.Initialize(ctx, sku, 10); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	const duplicates = 20
	ids := make([]string, duplicates)
	var unexpected int32

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < duplicates; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			record, err := layer.Reserve(ctx, "shared-key", sku, "user-1", 1)
			if err != nil {
				atomic.AddInt32(&unexpected, 1)
				return
			}
			ids[n] = record.ReservationID
		}(i)
	}
	close(start)
	wg.Wait()

	if got := atomic.LoadInt32(&unexpected); got != 0 {
		t.Fatalf("unexpected errors among duplicate requests: %d", got)
	}
	for i := 1; i < duplicates; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("duplicate request %d minted a distinct reservation: %s vs %s", i, ids[i], ids[0])
		}
	}

	available, _, err := engine.Status(ctx, sku)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if available != 9 {
		t.Fatalf("available = %d, want 9 (stock decremented exactly once across duplicates)", available)
	}
}
