package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// NewPostgresClient opens and pings a Postgres connection pool sized the
// way the teacher's durable store is sized.
func NewPostgresClient(url string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(25)
	db.SetMaxOpenConns(100)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresClient{db: db}, nil
}

// Close closes the Postgres client.
func (c *PostgresClient) Close() error {
	return c.db.Close()
}

// HealthCheck checks if the Postgres client is healthy.
func (c *PostgresClient) HealthCheck() error {
	return c.db.Ping()
}

// CreateTables creates the durable schema: confirmed orders, their line
// items, and the append-only audit log (spec.md §7).
func (c *PostgresClient) CreateTables() error {
	schema := `
    CREATE TABLE IF NOT EXISTS orders (
        order_id VARCHAR(40) PRIMARY KEY,
        user_id VARCHAR(100) NOT NULL,
        status VARCHAR(20) NOT NULL,
        total_amount NUMERIC(18,4) NOT NULL,
        created_at TIMESTAMP NOT NULL DEFAULT NOW()
    );

    CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);

    CREATE TABLE IF NOT EXISTS order_items (
        id SERIAL PRIMARY KEY,
        order_id VARCHAR(40) NOT NULL REFERENCES orders(order_id),
        sku VARCHAR(100) NOT NULL,
        quantity BIGINT NOT NULL,
        price_per_unit NUMERIC(18,4) NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);

    CREATE TABLE IF NOT EXISTS audit_log (
        id BIGSERIAL PRIMARY KEY,
        event_type VARCHAR(30) NOT NULL,
        user_id VARCHAR(100) NOT NULL,
        sku VARCHAR(100) NOT NULL,
        reservation_id VARCHAR(40) NOT NULL,
        details JSONB,
        occurred_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_audit_reservation ON audit_log(reservation_id);
    CREATE INDEX IF NOT EXISTS idx_audit_user ON audit_log(user_id);
    `

	_, err := c.db.Exec(schema)
	return err
}

// InsertOrder writes a confirmed order and its line items in a single
// transaction, the same "insert header, insert lines, commit" shape the
// teacher uses for CompletePurchase.
func (c *PostgresClient) InsertOrder(order OrderRow, items []OrderItemRow) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO orders (order_id, user_id, status, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, order.OrderID, order.UserID, order.Status, order.TotalAmount, order.CreatedAt)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO order_items (order_id, sku, quantity, price_per_unit)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err := stmt.Exec(item.OrderID, item.SKU, item.Quantity, item.PricePerUnit); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetOrder returns an order's header and line items, or sql.ErrNoRows if
// no such order exists.
func (c *PostgresClient) GetOrder(orderID string) (OrderRow, []OrderItemRow, error) {
	var order OrderRow
	err := c.db.QueryRow(`
		SELECT order_id, user_id, status, total_amount, created_at
		FROM orders WHERE order_id = $1
	`, orderID).Scan(&order.OrderID, &order.UserID, &order.Status, &order.TotalAmount, &order.CreatedAt)
	if err != nil {
		return OrderRow{}, nil, err
	}

	rows, err := c.db.Query(`
		SELECT order_id, sku, quantity, price_per_unit
		FROM order_items WHERE order_id = $1
	`, orderID)
	if err != nil {
		return OrderRow{}, nil, err
	}
	defer rows.Close()

	var items []OrderItemRow
	for rows.Next() {
		var item OrderItemRow
		if err := rows.Scan(&item.OrderID, &item.SKU, &item.Quantity, &item.PricePerUnit); err != nil {
			return OrderRow{}, nil, err
		}
		items = append(items, item)
	}
	return order, items, rows.Err()
}

// InsertSingleAuditEvent inserts one audit row (fallback scenario when a
// batch insert fails, mirroring the teacher's InsertSingleAttempt path).
func (c *PostgresClient) InsertSingleAuditEvent(event AuditEventRow) error {
	_, err := c.db.Exec(`
		INSERT INTO audit_log (event_type, user_id, sku, reservation_id, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, event.EventType, event.UserID, event.SKU, event.ReservationID, event.Details, event.Timestamp)
	return err
}

// BatchInsertAuditEvents inserts a batch of audit events in one
// transaction. On any row failure the whole batch is rolled back and the
// caller is expected to fall back to InsertSingleAuditEvent per event,
// the same division of labor as the teacher's BatchInsertAttempts.
func (c *PostgresClient) BatchInsertAuditEvents(events []AuditEventRow) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO audit_log (event_type, user_id, sku, reservation_id, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, event := range events {
		if _, err := stmt.Exec(event.EventType, event.UserID, event.SKU, event.ReservationID, event.Details, event.Timestamp); err != nil {
			return fmt.Errorf("audit batch insert: %w", err)
		}
	}

	return tx.Commit()
}
