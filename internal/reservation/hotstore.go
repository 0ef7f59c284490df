package reservation

import (
	"context"
	"time"
)

// HotStore abstracts the Redis-backed hot-state store (spec.md's
// component A) behind an interface. The teacher calls its *RedisClient
// directly from handlers with no seam; here a thin interface is
// introduced deliberately so Engine can be exercised in tests against an
// in-memory fake instead of a live Redis instance — the one interface
// abstraction this module adds beyond the teacher's direct-struct style,
// recorded in SPEC_FULL.md.
type HotStore interface {
	Initialize(ctx context.Context, sku string, quantity int64) error
	Status(ctx context.Context, sku string) (available int64, initialized bool, err error)

	Reserve(ctx context.Context, reservationID, sku, userID string, quantity int64, now time.Time, ttl time.Duration) (ReserveResult, error)
	Cancel(ctx context.Context, reservationID, userID string) (MutationResult, error)
	Expire(ctx context.Context, reservationID string) (MutationResult, error)
	ConfirmFetchDelete(ctx context.Context, reservationID, userID string) (MutationResult, error)

	PopDueExpirations(ctx context.Context, asOf time.Time, limit int) ([]string, error)

	AcquireIdempotencySlot(ctx context.Context, key, placeholderValue string, ttl time.Duration) (bool, error)
	GetIdempotencySlot(ctx context.Context, key string) (string, bool, error)
	SetIdempotencySlot(ctx context.Context, key, value string, ttl time.Duration) error
	ReleaseIdempotencySlot(ctx context.Context, key string) error
}

// ReserveStatus is the outcome tag of HotStore.Reserve; the Redis
// implementation's reserve script returns these same strings.
type ReserveStatus string

const (
	ReserveOK             ReserveStatus = "ok"
	ReserveNotInitialized ReserveStatus = "not_initialized"
	ReserveInsufficient   ReserveStatus = "insufficient"
)

// ReserveResult is the outcome of a HotStore.Reserve call.
type ReserveResult struct {
	Status    ReserveStatus
	Available int64
}

// MutationStatus is the outcome tag of Cancel/Expire/ConfirmFetchDelete;
// the Redis implementation's scripts return these same strings.
type MutationStatus string

const (
	MutationOK              MutationStatus = "ok"
	MutationNotFound        MutationStatus = "not_found"
	MutationForbidden       MutationStatus = "forbidden"
	MutationAlreadyTerminal MutationStatus = "already_terminal"
)

// MutationResult is the outcome of Cancel/Expire/ConfirmFetchDelete.
type MutationResult struct {
	Status    MutationStatus
	SKU       string
	Quantity  int64
	UserID    string
	ExpiresAt int64
}

// ReservationRecord is the caller-facing shape of a reservation returned
// by Engine.Reserve, independent of how the hot store represents it.
type ReservationRecord struct {
	ReservationID string
	SKU           string
	UserID        string
	Quantity      int64
	CreatedAt     time.Time
	ExpiresAt     time.Time
}
