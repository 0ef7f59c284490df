package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	myLogger "github.com/flashreserve/reservation-core/internal/logger"
)

var validate = validator.New()

// Initialize handles POST /v1/inventory/{sku}/initialize?quantity=N
// (spec.md §4.A).
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := myLogger.FromContext(ctx, "inventory_handler")
	requestID := getRequestID(ctx)

	sku := chi.URLParam(r, "sku")
	if sku == "" {
		writeJSONError(w, http.StatusBadRequest, "sku is required", "INVALID_INPUT", nil, requestID)
		return
	}

	quantity, err := strconv.ParseInt(r.URL.Query().Get("quantity"), 10, 64)
	if err != nil || quantity < 0 {
		writeJSONError(w, http.StatusBadRequest, "quantity must be a non-negative integer", "INVALID_INPUT", nil, requestID)
		return
	}

	if err := h.Engine.Initialize(ctx, sku, quantity); err != nil {
		logger.Error("initialize failed", "sku", sku, "error", err)
		writeError(w, requestID, err)
		return
	}
	if h.Catalog != nil {
		h.Catalog.EnsureSKU(sku)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(StatusResponse{SKU: sku, Available: quantity})
}

// Status handles GET /v1/inventory/{sku} (spec.md §4.B). An uninitialized
// sku is not an error: it comes back as a 200 with available:0 and
// uninitialized:true.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := getRequestID(ctx)

	sku := chi.URLParam(r, "sku")
	if sku == "" {
		writeJSONError(w, http.StatusBadRequest, "sku is required", "INVALID_INPUT", nil, requestID)
		return
	}

	available, initialized, err := h.Engine.Status(ctx, sku)
	if err != nil {
		writeError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(StatusResponse{
		SKU:           sku,
		Available:     available,
		Uninitialized: !initialized,
	})
}

func getRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(myLogger.RequestIDKey).(string); ok {
		return v
	}
	return ""
}
