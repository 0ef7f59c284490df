package reservation

import (
	"context"
	"encoding/json"
	"time"
)

// idempotencyOutcome is the JSON shape stored in an idempotency slot: the
// recorded result of the first Reserve attempt for a given key, replayed
// verbatim on every retry instead of re-running the mutation (spec.md
// §4.D, §9).
type idempotencyOutcome struct {
	Pending bool               `json:"pending"`
	Record  *ReservationRecord `json:"record,omitempty"`
	ErrKind Kind               `json:"err_kind,omitempty"`
	ErrMsg  string             `json:"err_msg,omitempty"`
}

// IdempotencyLayer wraps Engine.Reserve with a claim-then-replace slot so
// that retried requests bearing the same idempotency key observe exactly
// one outcome, win or lose, even if the retry arrives after the original
// request's process crashed mid-flight.
type IdempotencyLayer struct {
	engine *Engine
	store  HotStore
	ttl    time.Duration
}

// NewIdempotencyLayer builds an IdempotencyLayer over engine, keeping
// slots for ttl.
func NewIdempotencyLayer(engine *Engine, store HotStore, ttl time.Duration) *IdempotencyLayer {
	return &IdempotencyLayer{engine: engine, store: store, ttl: ttl}
}

// Reserve performs engine.Reserve exactly once per idempotencyKey: the
// first caller to acquire the slot runs the real mutation and records
// its outcome; every other caller (a retry, or a concurrent duplicate)
// replays the recorded outcome without touching stock again.
func (l *IdempotencyLayer) Reserve(ctx context.Context, idempotencyKey, sku, userID string, quantity int64) (ReservationRecord, error) {
	if idempotencyKey == "" {
		return l.engine.Reserve(ctx, sku, userID, quantity)
	}

	placeholder, err := json.Marshal(idempotencyOutcome{Pending: true})
	if err != nil {
		return ReservationRecord{}, err
	}

	acquired, err := l.store.AcquireIdempotencySlot(ctx, idempotencyKey, string(placeholder), l.ttl)
	if err != nil {
		return ReservationRecord{}, err
	}

	if !acquired {
		return l.awaitOutcome(ctx, idempotencyKey)
	}

	record, reserveErr := l.engine.Reserve(ctx, sku, userID, quantity)

	outcome := idempotencyOutcome{}
	if reserveErr != nil {
		if rerr, ok := AsError(reserveErr); ok {
			outcome.ErrKind = rerr.Kind
			outcome.ErrMsg = rerr.Message
		} else {
			// A non-reservation error (backend failure) leaves no durable
			// outcome to replay; release the slot so a retry gets a fresh
			// attempt instead of being stuck behind a stale placeholder.
			_ = l.store.ReleaseIdempotencySlot(ctx, idempotencyKey)
			return ReservationRecord{}, reserveErr
		}
	} else {
		outcome.Record = &record
	}

	encoded, err := json.Marshal(outcome)
	if err != nil {
		return record, reserveErr
	}
	if err := l.store.SetIdempotencySlot(ctx, idempotencyKey, string(encoded), l.ttl); err != nil {
		return record, reserveErr
	}

	return record, reserveErr
}

// awaitOutcome polls the slot a bounded number of times for the
// in-flight original request to finish, then replays its recorded
// outcome. A caller that loses the race for the slot is, by definition,
// a concurrent duplicate of a request already being processed.
func (l *IdempotencyLayer) awaitOutcome(ctx context.Context, idempotencyKey string) (ReservationRecord, error) {
	const maxAttempts = 20
	const pollInterval = 50 * time.Millisecond

	for attempt := 0; attempt < maxAttempts; attempt++ {
		raw, ok, err := l.store.GetIdempotencySlot(ctx, idempotencyKey)
		if err != nil {
			return ReservationRecord{}, err
		}
		if !ok {
			// No slot: it expired, or the original attempt released it
			// after a backend error. Report that as an error rather than
			// blocking forever; the reserve is not retried here.
			return ReservationRecord{}, NewError(KindInvalidInput, "idempotency key expired during replay", nil)
		}

		var outcome idempotencyOutcome
		if err := json.Unmarshal([]byte(raw), &outcome); err != nil {
			return ReservationRecord{}, err
		}

		if !outcome.Pending {
			if outcome.ErrKind != "" {
				return ReservationRecord{}, NewError(outcome.ErrKind, outcome.ErrMsg, nil)
			}
			if outcome.Record != nil {
				return *outcome.Record, nil
			}
		}

		select {
		case <-ctx.Done():
			return ReservationRecord{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return ReservationRecord{}, NewError(KindBackendUnavailable, "timed out waiting for concurrent reserve to complete", nil)
}
