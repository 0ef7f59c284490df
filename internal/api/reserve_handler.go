package api

import (
	"encoding/json"
	"net/http"
	"time"

	myLogger "github.com/flashreserve/reservation-core/internal/logger"
	"github.com/flashreserve/reservation-core/internal/middleware"
	"github.com/flashreserve/reservation-core/internal/reservation"
)

// Reserve handles POST /v1/inventory/reserve (spec.md §4.C). An
// "Idempotency-Key" header, if present, makes retries of the same
// logical request safe to replay (spec.md §4.D, §9).
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := myLogger.FromContext(ctx, "reserve_handler")
	requestID := getRequestID(ctx)
	userID := middleware.UserIDFromContext(ctx)

	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body", "INVALID_INPUT", nil, requestID)
		return
	}
	if err := validate.Struct(req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error(), "INVALID_INPUT", nil, requestID)
		return
	}
	if h.Config.MaxQuantityPerReservation > 0 && req.Quantity > int64(h.Config.MaxQuantityPerReservation) {
		writeJSONError(w, http.StatusBadRequest, "quantity exceeds the per-reservation limit", "INVALID_INPUT",
			map[string]interface{}{"max_quantity": h.Config.MaxQuantityPerReservation}, requestID)
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	record, err := h.Idempotency.Reserve(ctx, idempotencyKey, req.SKU, userID, req.Quantity)
	if err != nil {
		logger.Info("reserve failed", "sku", req.SKU, "user_id", userID, "error", err)
		if h.Audit != nil {
			if rerr, ok := reservation.AsError(err); ok && rerr.Kind == reservation.KindInsufficient {
				h.Audit.Record("oversell_blocked", userID, req.SKU, "", map[string]interface{}{
					"requested": req.Quantity,
				})
			}
		}
		writeError(w, requestID, err)
		return
	}

	if h.Audit != nil {
		h.Audit.Record("reserve", userID, record.SKU, record.ReservationID, map[string]interface{}{
			"quantity": record.Quantity,
		})
	}

	ttlSeconds := int64(record.ExpiresAt.Sub(record.CreatedAt).Seconds())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ReserveResponse{
		ReservationID: record.ReservationID,
		SKU:           record.SKU,
		Quantity:      record.Quantity,
		ExpiresAt:     record.ExpiresAt.UTC().Format(time.RFC3339),
		TTLSeconds:    ttlSeconds,
	})
}
