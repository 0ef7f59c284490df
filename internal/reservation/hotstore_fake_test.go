package reservation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeHotStore is an in-memory HotStore used by this package's tests. It
// reproduces the same semantics as the Redis-backed implementation
// (atomic check-and-decrement, ownership-checked mutation, a time-sorted
// expiry index) behind a single mutex, standing in for miniredis against
// the production Redis client.
type fakeHotStore struct {
	mu sync.Mutex

	stock       map[string]int64
	initialized map[string]bool
	records     map[string]fakeRecord
	expiryIndex map[string]int64 // reservationID -> expiry unix nano
	idempotency map[string]fakeSlot
}

type fakeRecord struct {
	sku      string
	userID   string
	quantity int64
	expires  int64
}

type fakeSlot struct {
	value   string
	expires int64
}

func newFakeHotStore() *fakeHotStore {
	return &fakeHotStore{
		stock:       make(map[string]int64),
		initialized: make(map[string]bool),
		records:     make(map[string]fakeRecord),
		expiryIndex: make(map[string]int64),
		idempotency: make(map[string]fakeSlot),
	}
}

func (f *fakeHotStore) Initialize(ctx context.Context, sku string, quantity int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[sku] = quantity
	f.initialized[sku] = true
	return nil
}

func (f *fakeHotStore) Status(ctx context.Context, sku string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized[sku] {
		return 0, false, nil
	}
	return f.stock[sku], true, nil
}

func (f *fakeHotStore) Reserve(ctx context.Context, reservationID, sku, userID string, quantity int64, now time.Time, ttl time.Duration) (ReserveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.initialized[sku] {
		return ReserveResult{Status: ReserveNotInitialized}, nil
	}
	available := f.stock[sku]
	if available < quantity {
		return ReserveResult{Status: ReserveInsufficient, Available: available}, nil
	}

	f.stock[sku] = available - quantity
	expires := now.Add(ttl)
	f.records[reservationID] = fakeRecord{sku: sku, userID: userID, quantity: quantity, expires: expires.UnixNano()}
	f.expiryIndex[reservationID] = expires.UnixNano()

	return ReserveResult{Status: ReserveOK, Available: f.stock[sku]}, nil
}

func (f *fakeHotStore) Cancel(ctx context.Context, reservationID, userID string) (MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[reservationID]
	if !ok {
		return MutationResult{Status: MutationNotFound}, nil
	}
	if rec.userID != userID {
		return MutationResult{Status: MutationForbidden}, nil
	}

	f.stock[rec.sku] += rec.quantity
	delete(f.records, reservationID)
	delete(f.expiryIndex, reservationID)

	return MutationResult{Status: MutationOK, SKU: rec.sku, Quantity: rec.quantity, UserID: rec.userID, ExpiresAt: rec.expires}, nil
}

func (f *fakeHotStore) Expire(ctx context.Context, reservationID string) (MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[reservationID]
	if !ok {
		return MutationResult{Status: MutationAlreadyTerminal}, nil
	}

	f.stock[rec.sku] += rec.quantity
	delete(f.records, reservationID)
	delete(f.expiryIndex, reservationID)

	return MutationResult{Status: MutationOK, SKU: rec.sku, Quantity: rec.quantity, UserID: rec.userID, ExpiresAt: rec.expires}, nil
}

func (f *fakeHotStore) ConfirmFetchDelete(ctx context.Context, reservationID, userID string) (MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[reservationID]
	if !ok {
		return MutationResult{Status: MutationNotFound}, nil
	}
	if rec.userID != userID {
		return MutationResult{Status: MutationForbidden}, nil
	}

	// No stock restoration: confirm consumes the reservation permanently.
	delete(f.records, reservationID)
	delete(f.expiryIndex, reservationID)

	return MutationResult{Status: MutationOK, SKU: rec.sku, Quantity: rec.quantity, UserID: rec.userID, ExpiresAt: rec.expires}, nil
}

func (f *fakeHotStore) PopDueExpirations(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	type due struct {
		id      string
		expires int64
	}
	var dueList []due
	cutoff := asOf.UnixNano()
	for id, expires := range f.expiryIndex {
		if expires <= cutoff {
			dueList = append(dueList, due{id: id, expires: expires})
		}
	}
	sort.Slice(dueList, func(i, j int) bool { return dueList[i].expires < dueList[j].expires })

	if len(dueList) > limit {
		dueList = dueList[:limit]
	}

	ids := make([]string, 0, len(dueList))
	for _, d := range dueList {
		ids = append(ids, d.id)
	}
	return ids, nil
}

func (f *fakeHotStore) AcquireIdempotencySlot(ctx context.Context, key, placeholderValue string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if slot, ok := f.idempotency[key]; ok && slot.expires > time.Now().UnixNano() {
		return false, nil
	}
	f.idempotency[key] = fakeSlot{value: placeholderValue, expires: time.Now().Add(ttl).UnixNano()}
	return true, nil
}

func (f *fakeHotStore) GetIdempotencySlot(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot, ok := f.idempotency[key]
	if !ok || slot.expires <= time.Now().UnixNano() {
		return "", false, nil
	}
	return slot.value, true, nil
}

func (f *fakeHotStore) SetIdempotencySlot(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idempotency[key] = fakeSlot{value: value, expires: time.Now().Add(ttl).UnixNano()}
	return nil
}

func (f *fakeHotStore) ReleaseIdempotencySlot(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.idempotency, key)
	return nil
}
