// Package reservation implements the inventory reservation core: the
// per-SKU stock counter, the atomic reserve/cancel/confirm/expire state
// machine, and the expiry sweeper (spec.md §4, components A/C/D/E).
package reservation

import (
	"context"
	"time"

	"github.com/flashreserve/reservation-core/internal/utils"
)

// Engine is the reservation core. It owns no state itself; all state
// lives in the HotStore, matching the teacher's pattern of handlers
// working directly against the Redis client rather than caching
// anything in process memory.
type Engine struct {
	store HotStore
	ttl   time.Duration
}

// NewEngine builds an Engine against store, holding every reservation
// for ttl.
func NewEngine(store HotStore, ttl time.Duration) *Engine {
	return &Engine{store: store, ttl: ttl}
}

// Initialize sets sku's available stock (spec.md §4.A). Re-initializing
// an existing SKU replaces its counter; outstanding reservations against
// the old counter are not reconciled, the same "last write wins" posture
// the teacher's AtomicInitializeSale takes toward a new sale cycle.
func (e *Engine) Initialize(ctx context.Context, sku string, quantity int64) error {
	if quantity < 0 {
		return NewError(KindInvalidInput, "quantity must be non-negative", nil)
	}
	return e.store.Initialize(ctx, sku, quantity)
}

// Status returns sku's current available stock and whether sku has ever
// been initialized. An uninitialized SKU is not an error condition here —
// the caller surfaces it as a sentinel in the response rather than a
// failure (spec.md §4.B).
func (e *Engine) Status(ctx context.Context, sku string) (available int64, initialized bool, err error) {
	return e.store.Status(ctx, sku)
}

// Reserve attempts to atomically check-and-decrement sku's stock for
// quantity units on userID's behalf, returning a time-bounded
// reservation record on success (spec.md §4.C). The caller is
// responsible for idempotency (see idempotency.go) — Reserve itself
// always performs a fresh mutation.
func (e *Engine) Reserve(ctx context.Context, sku, userID string, quantity int64) (ReservationRecord, error) {
	if quantity <= 0 {
		return ReservationRecord{}, NewError(KindInvalidInput, "quantity must be positive", nil)
	}

	reservationID := utils.GenerateReservationID()
	now := time.Now()

	result, err := e.store.Reserve(ctx, reservationID, sku, userID, quantity, now, e.ttl)
	if err != nil {
		return ReservationRecord{}, err
	}

	switch result.Status {
	case ReserveNotInitialized:
		return ReservationRecord{}, NewError(KindNotInitialized, "sku has not been initialized", map[string]interface{}{"sku": sku})
	case ReserveInsufficient:
		return ReservationRecord{}, NewError(KindInsufficient, "insufficient stock", map[string]interface{}{
			"sku": sku, "available": result.Available, "requested": quantity,
		})
	case ReserveOK:
		return ReservationRecord{
			ReservationID: reservationID,
			SKU:           sku,
			UserID:        userID,
			Quantity:      quantity,
			CreatedAt:     now,
			ExpiresAt:     now.Add(e.ttl),
		}, nil
	default:
		return ReservationRecord{}, NewError(KindBackendUnavailable, "unexpected reserve status", map[string]interface{}{"status": string(result.Status)})
	}
}

// Cancel releases reservationID back to sku's stock on userID's behalf
// (spec.md §4.D). Only the reservation's owner may cancel it.
func (e *Engine) Cancel(ctx context.Context, reservationID, userID string) error {
	result, err := e.store.Cancel(ctx, reservationID, userID)
	if err != nil {
		return err
	}
	return mutationToError(result, "cancel")
}

// mutationToError maps a non-ok MutationResult to the matching tagged
// error. It returns nil for MutationOK.
func mutationToError(result MutationResult, op string) error {
	switch result.Status {
	case MutationOK:
		return nil
	case MutationNotFound:
		return NewError(KindNotFound, "reservation not found", map[string]interface{}{"op": op})
	case MutationForbidden:
		return NewError(KindForbidden, "reservation does not belong to caller", map[string]interface{}{"op": op})
	case MutationAlreadyTerminal:
		return NewError(KindAlreadyTerminal, "reservation is already terminal", map[string]interface{}{"op": op})
	default:
		return NewError(KindBackendUnavailable, "unexpected mutation status", map[string]interface{}{"op": op, "status": string(result.Status)})
	}
}
