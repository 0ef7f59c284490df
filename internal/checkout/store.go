package checkout

import (
	"context"

	"github.com/flashreserve/reservation-core/internal/database"
)

// PostgresOrderStore adapts *database.PostgresClient to the OrderStore
// interface, translating an Order into the header+line-item rows the
// durable schema expects.
type PostgresOrderStore struct {
	db *database.PostgresClient
}

// NewPostgresOrderStore builds a PostgresOrderStore over db.
func NewPostgresOrderStore(db *database.PostgresClient) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

// InsertOrder writes order as a single-item order header plus one line
// item. Confirm only ever produces one SKU per reservation, so this is a
// one-item order; the schema supports multiple items for future
// multi-SKU checkouts.
func (s *PostgresOrderStore) InsertOrder(ctx context.Context, order Order) error {
	row := database.OrderRow{
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		Status:      "confirmed",
		TotalAmount: order.TotalAmount.String(),
		CreatedAt:   order.CreatedAt,
	}
	items := []database.OrderItemRow{{
		OrderID:      order.OrderID,
		SKU:          order.SKU,
		Quantity:     order.Quantity,
		PricePerUnit: order.PricePerUnit.String(),
	}}
	return s.db.InsertOrder(row, items)
}
