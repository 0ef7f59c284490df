// Package checkout implements the Confirm operation (spec.md's component
// F): turning a live reservation into a durable order, pricing it via
// the catalog, and recording the audit trail — grounded on the teacher's
// CompletePurchase transaction (internal/database/postgres.go) and its
// checkout/purchase handler split between hot-state mutation and durable
// write.
package checkout

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/flashreserve/reservation-core/internal/catalog"
	"github.com/flashreserve/reservation-core/internal/reservation"
	"github.com/flashreserve/reservation-core/internal/utils"
)

// Order is the durable result of a successful Confirm.
type Order struct {
	OrderID      string
	UserID       string
	SKU          string
	Quantity     int64
	PricePerUnit decimal.Decimal
	TotalAmount  decimal.Decimal
	CreatedAt    time.Time
}

// OrderStore is the durable sink an order is written to. It is satisfied
// by PostgresOrderStore (store.go), a thin adapter over
// *database.PostgresClient, kept as an interface here for the same
// testability reason HotStore is one.
type OrderStore interface {
	InsertOrder(ctx context.Context, order Order) error
}

// AuditSink receives one audit event per terminal reservation outcome
// (reserve, confirm, cancel, expire, oversell_blocked). It is satisfied
// by the audit.Writer's best-effort, non-blocking Record method.
type AuditSink interface {
	Record(eventType, userID, sku, reservationID string, details map[string]interface{})
}

// Coordinator implements Confirm: it resolves the reservation via the
// engine's ownership-checked fetch-delete, prices it, and writes the
// resulting order to the durable store.
type Coordinator struct {
	store   reservation.HotStore
	catalog *catalog.Catalog
	orders  OrderStore
	audit   AuditSink
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(store reservation.HotStore, cat *catalog.Catalog, orders OrderStore, audit AuditSink) *Coordinator {
	return &Coordinator{store: store, catalog: cat, orders: orders, audit: audit}
}

// Confirm turns reservationID into a durable order on userID's behalf
// (spec.md §4.D). It uses the hot store's compare-and-delete primitive
// directly rather than Engine.Cancel/Expire, since confirming never
// restores stock — the units are sold, not released. A reservation
// already swept by the expiry sweeper resolves to NOT_FOUND here exactly
// as it would for a second confirm attempt, which is the race-resolution
// spec.md §9 calls for.
func (c *Coordinator) Confirm(ctx context.Context, reservationID, userID string) (Order, error) {
	result, err := c.store.ConfirmFetchDelete(ctx, reservationID, userID)
	if err != nil {
		return Order{}, err
	}

	switch result.Status {
	case reservation.MutationNotFound:
		return Order{}, reservation.NewError(reservation.KindNotFound, "reservation not found", nil)
	case reservation.MutationForbidden:
		return Order{}, reservation.NewError(reservation.KindForbidden, "reservation does not belong to caller", nil)
	case reservation.MutationOK:
		// fall through
	default:
		return Order{}, reservation.NewError(reservation.KindBackendUnavailable, "unexpected confirm status", map[string]interface{}{"status": string(result.Status)})
	}

	pricePerUnit, err := c.catalog.PricePerUnit(result.SKU)
	if err != nil {
		return Order{}, err
	}
	total := pricePerUnit.Mul(decimal.NewFromInt(result.Quantity))

	order := Order{
		OrderID:      utils.GenerateOrderID(),
		UserID:       userID,
		SKU:          result.SKU,
		Quantity:     result.Quantity,
		PricePerUnit: pricePerUnit,
		TotalAmount:  total,
		CreatedAt:    time.Now(),
	}

	if err := c.orders.InsertOrder(ctx, order); err != nil {
		return Order{}, reservation.NewError(reservation.KindBackendUnavailable, "failed to record order", map[string]interface{}{"error": err.Error()})
	}

	if c.audit != nil {
		c.audit.Record("confirm", userID, result.SKU, reservationID, map[string]interface{}{
			"order_id": order.OrderID,
			"quantity": result.Quantity,
		})
	}

	return order, nil
}
