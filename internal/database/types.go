package database

import (
	"database/sql"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisClient wraps the hot-state store: SKU counters, reservation
// records, the expiry index, and the idempotency mapping. Reserve,
// cancel, expire and confirm run as Lua scripts so each check-and-mutate
// sequence is strictly serialised per SKU, per spec.md §4.C; initialize
// and the idempotency-slot operations are single Redis commands.
type RedisClient struct {
	pool *redis.Pool
}

// PostgresClient wraps the durable store: orders, order line items, and
// the audit log.
type PostgresClient struct {
	db *sql.DB
}

// OrderRow is the durable representation of a confirmed order.
type OrderRow struct {
	OrderID     string
	UserID      string
	Status      string
	TotalAmount string // decimal.Decimal rendered as a string for storage round-trips
	CreatedAt   time.Time
}

// OrderItemRow is a single line item of an order.
type OrderItemRow struct {
	OrderID      string
	SKU          string
	Quantity     int64
	PricePerUnit string
}

// AuditEventRow is an append-only audit log entry.
type AuditEventRow struct {
	EventType     string
	UserID        string
	SKU           string
	ReservationID string
	Details       string // JSON blob
	Timestamp     time.Time
}
