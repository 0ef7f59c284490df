package api

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flashreserve/reservation-core/internal/database"
)

// OrderReader is satisfied by *database.PostgresClient; kept as an
// interface here so the order lookup endpoint doesn't force the rest of
// this package to depend on database's concrete type beyond this one
// handler.
type OrderReader interface {
	GetOrder(orderID string) (database.OrderRow, []database.OrderItemRow, error)
}

// OrderResponse is the response for GET /v1/checkout/orders/{order_id}.
type OrderResponse struct {
	OrderID     string             `json:"order_id"`
	UserID      string             `json:"user_id"`
	Status      string             `json:"status"`
	TotalAmount string             `json:"total_amount"`
	Items       []OrderItemPayload `json:"items"`
}

// OrderItemPayload is one order line item on the wire.
type OrderItemPayload struct {
	SKU          string `json:"sku"`
	Quantity     int64  `json:"quantity"`
	PricePerUnit string `json:"price_per_unit"`
}

// Orders handles GET /v1/checkout/orders/{order_id}.
func (h *Handler) Orders(reader OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r.Context())
		orderID := chi.URLParam(r, "order_id")
		if orderID == "" {
			writeJSONError(w, http.StatusBadRequest, "order_id is required", "INVALID_INPUT", nil, requestID)
			return
		}

		order, items, err := reader.GetOrder(orderID)
		if err == sql.ErrNoRows {
			writeJSONError(w, http.StatusNotFound, "order not found", "NOT_FOUND", nil, requestID)
			return
		}
		if err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, "internal server error", "", nil, requestID)
			return
		}

		payload := OrderResponse{
			OrderID:     order.OrderID,
			UserID:      order.UserID,
			Status:      order.Status,
			TotalAmount: order.TotalAmount,
		}
		for _, item := range items {
			payload.Items = append(payload.Items, OrderItemPayload{
				SKU:          item.SKU,
				Quantity:     item.Quantity,
				PricePerUnit: item.PricePerUnit,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(payload)
	}
}
