package api

import (
	"context"

	"github.com/flashreserve/reservation-core/internal/audit"
	"github.com/flashreserve/reservation-core/internal/catalog"
	"github.com/flashreserve/reservation-core/internal/checkout"
	"github.com/flashreserve/reservation-core/internal/config"
	"github.com/flashreserve/reservation-core/internal/ratelimit"
	"github.com/flashreserve/reservation-core/internal/reservation"
)

// Handler is the main handler for the API, wiring the reservation
// engine, idempotency layer, checkout coordinator, catalog, and rate
// gate the way the teacher's Handler wires Redis/Postgres clients and
// background-worker channels.
type Handler struct {
	Config *config.Config

	Engine      *reservation.Engine
	Idempotency *reservation.IdempotencyLayer
	Checkout    *checkout.Coordinator
	Catalog     *catalog.Catalog
	Audit       *audit.Writer
	RateGate    *ratelimit.Gate

	// HealthCheckers pings each named dependency; populated by cmd/server
	// with thin closures over the concrete Redis/Postgres clients so the
	// health handler does not depend on those client types.
	HealthCheckers map[string]func(ctx context.Context) error
}

// NewHandler creates a new Handler.
func NewHandler(cfg *config.Config, engine *reservation.Engine, idempotency *reservation.IdempotencyLayer, coordinator *checkout.Coordinator, cat *catalog.Catalog, auditWriter *audit.Writer, rateGate *ratelimit.Gate, healthCheckers map[string]func(ctx context.Context) error) *Handler {
	return &Handler{
		Config:         cfg,
		Engine:         engine,
		Idempotency:    idempotency,
		Checkout:       coordinator,
		Catalog:        cat,
		Audit:          auditWriter,
		RateGate:       rateGate,
		HealthCheckers: healthCheckers,
	}
}

// StatusResponse is the response for GET /v1/inventory/{sku}. Uninitialized
// is only ever present (and true) when sku has never been initialized —
// that case is not an error, per spec.md §4.B.
type StatusResponse struct {
	SKU           string `json:"sku"`
	Available     int64  `json:"available"`
	Uninitialized bool   `json:"uninitialized,omitempty"`
}

// ReserveRequest is the request body for POST /v1/inventory/reserve.
type ReserveRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int64  `json:"quantity" validate:"required,min=1"`
}

// ReserveResponse is the response for a successful reserve call.
type ReserveResponse struct {
	ReservationID string `json:"reservation_id"`
	SKU           string `json:"sku"`
	Quantity      int64  `json:"quantity"`
	ExpiresAt     string `json:"expires_at"`
	TTLSeconds    int64  `json:"ttl_seconds"`
}

// ConfirmRequest is the request body for POST /v1/checkout/confirm.
type ConfirmRequest struct {
	ReservationID string `json:"reservation_id" validate:"required"`
}

// OrderItem is one line item of a confirmed order. A reservation is
// always for a single SKU, so Items is always a one-element slice; the
// array shape matches spec.md §6 rather than the engine's data model.
type OrderItem struct {
	SKU          string `json:"sku"`
	Quantity     int64  `json:"quantity"`
	PricePerUnit string `json:"price_per_unit"`
}

// ConfirmResponse is the response for a successful confirm call.
type ConfirmResponse struct {
	OrderID string      `json:"order_id"`
	Status  string      `json:"status"`
	Total   string      `json:"total"`
	Items   []OrderItem `json:"items"`
}

// CancelRequest is the request body for POST /v1/checkout/cancel.
type CancelRequest struct {
	ReservationID string `json:"reservation_id" validate:"required"`
}

// CancelResponse is the response for a successful cancel call.
type CancelResponse struct {
	OK bool `json:"ok"`
}

// HealthStatus represents the system health and statistics.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}
