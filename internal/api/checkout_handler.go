package api

import (
	"encoding/json"
	"net/http"

	myLogger "github.com/flashreserve/reservation-core/internal/logger"
	"github.com/flashreserve/reservation-core/internal/middleware"
)

// Confirm handles POST /v1/checkout/confirm (spec.md §4.F).
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := myLogger.FromContext(ctx, "checkout_handler")
	requestID := getRequestID(ctx)
	userID := middleware.UserIDFromContext(ctx)

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body", "INVALID_INPUT", nil, requestID)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT", nil, requestID)
		return
	}

	order, err := h.Checkout.Confirm(ctx, req.ReservationID, userID)
	if err != nil {
		logger.Info("confirm failed", "reservation_id", req.ReservationID, "user_id", userID, "error", err)
		writeError(w, requestID, err)
		return
	}

	logger.Info("order confirmed", "order_id", order.OrderID, "reservation_id", req.ReservationID, "user_id", userID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ConfirmResponse{
		OrderID: order.OrderID,
		Status:  "confirmed",
		Total:   order.TotalAmount.String(),
		Items: []OrderItem{{
			SKU:          order.SKU,
			Quantity:     order.Quantity,
			PricePerUnit: order.PricePerUnit.String(),
		}},
	})
}

// Cancel handles POST /v1/checkout/cancel (spec.md §4.C).
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := myLogger.FromContext(ctx, "checkout_handler")
	requestID := getRequestID(ctx)
	userID := middleware.UserIDFromContext(ctx)

	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body", "INVALID_INPUT", nil, requestID)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT", nil, requestID)
		return
	}

	if err := h.Engine.Cancel(ctx, req.ReservationID, userID); err != nil {
		logger.Info("cancel failed", "reservation_id", req.ReservationID, "user_id", userID, "error", err)
		writeError(w, requestID, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Record("cancel", userID, "", req.ReservationID, nil)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(CancelResponse{OK: true})
}
