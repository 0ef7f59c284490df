package reservation

import (
	"context"
	"log/slog"
	"time"

	myLogger "github.com/flashreserve/reservation-core/internal/logger"
)

// Sweeper periodically finds reservations past their expiry and expires
// them, restoring their stock (spec.md §4.E). It is the only component
// that calls HotStore.Expire — Engine never expires a reservation as a
// side effect of any client-facing call.
type Sweeper struct {
	engine   *Engine
	store    HotStore
	interval time.Duration
	batch    int

	onExpired func(record MutationResult, reservationID string)
}

// NewSweeper builds a Sweeper that ticks every interval and processes up
// to batch due reservations per tick, mirroring the teacher's batched
// ProcessExpiredCheckouts worker shape.
func NewSweeper(engine *Engine, store HotStore, interval time.Duration, batch int) *Sweeper {
	return &Sweeper{engine: engine, store: store, interval: interval, batch: batch}
}

// OnExpired registers a callback invoked once per successfully expired
// reservation, used to emit audit events without coupling this package
// to the audit writer.
func (s *Sweeper) OnExpired(fn func(result MutationResult, reservationID string)) {
	s.onExpired = fn
}

// Run blocks, sweeping on each tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	logger := myLogger.FromContext(ctx, "sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("sweeper | context done")
			return
		case <-ticker.C:
			s.sweepOnce(ctx, logger)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context, logger *slog.Logger) {
	due, err := s.store.PopDueExpirations(ctx, time.Now(), s.batch)
	if err != nil {
		logger.Error("sweeper | failed to list due expirations", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	logger.Debug("sweeper | processing due expirations", "count", len(due))

	for _, reservationID := range due {
		result, err := s.store.Expire(ctx, reservationID)
		if err != nil {
			logger.Error("sweeper | failed to expire reservation", "reservation_id", reservationID, "error", err)
			continue
		}
		if result.Status == MutationAlreadyTerminal {
			continue
		}
		logger.Info("sweeper | expired reservation", "reservation_id", reservationID, "sku", result.SKU, "quantity", result.Quantity)
		if s.onExpired != nil {
			s.onExpired(result, reservationID)
		}
	}
}
