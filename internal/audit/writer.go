// Package audit implements the append-only audit trail (spec.md §7): a
// batched background writer that fans each event out to the durable
// Postgres audit_log table and, best-effort, to an AMQP exchange for
// downstream consumers. Grounded on the teacher's
// ProcessCheckoutAttempts/flushAttemptsBatch worker
// (internal/api/checkout_handler.go) — same channel+ticker+batch shape,
// generalized from one event type to any reservation lifecycle event.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/flashreserve/reservation-core/internal/database"
	myLogger "github.com/flashreserve/reservation-core/internal/logger"
)

// Event is a single audit-log entry.
type Event struct {
	EventType     string
	UserID        string
	SKU           string
	ReservationID string
	Details       map[string]interface{}
	Timestamp     time.Time
}

// Store is the durable sink audit batches are flushed to.
type Store interface {
	BatchInsertAuditEvents(events []database.AuditEventRow) error
	InsertSingleAuditEvent(event database.AuditEventRow) error
}

// Publisher is the best-effort fan-out sink. A nil Publisher (no AMQP
// configured) simply skips the publish leg.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Writer batches Events and flushes them on a ticker or when the batch
// fills, exactly the teacher's worker loop generalized to reservation
// lifecycle events.
type Writer struct {
	store     Store
	publisher Publisher
	events    chan Event
	batchSize int
}

// NewWriter builds a Writer with an internal channel sized generously
// enough to absorb bursts without blocking request handlers; drops (with
// a log line) are preferred over blocking the hot path on a full channel,
// the same trade-off the teacher's handlers make with attemptsChan.
func NewWriter(store Store, publisher Publisher, batchSize int) *Writer {
	return &Writer{
		store:     store,
		publisher: publisher,
		events:    make(chan Event, 10000),
		batchSize: batchSize,
	}
}

// Record enqueues an event for the background flush worker. It never
// blocks: a full channel drops the event and logs, rather than slow down
// the reserve/confirm/cancel call path waiting on an audit write.
func (w *Writer) Record(eventType, userID, sku, reservationID string, details map[string]interface{}) {
	event := Event{
		EventType:     eventType,
		UserID:        userID,
		SKU:           sku,
		ReservationID: reservationID,
		Details:       details,
		Timestamp:     time.Now(),
	}
	select {
	case w.events <- event:
	default:
		myLogger.FromContext(context.Background(), "audit_writer").Error("dropped audit event: channel full", "event_type", eventType, "reservation_id", reservationID)
	}
}

// Run blocks, batching and flushing events until ctx is cancelled,
// mirroring the teacher's ProcessCheckoutAttempts select loop.
func (w *Writer) Run(ctx context.Context) {
	logger := myLogger.FromContext(ctx, "audit_writer")

	batch := make([]Event, 0, w.batchSize)
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				logger.Debug("flushing audit events on shutdown", "count", len(batch))
				w.flush(ctx, batch)
			}
			return

		case event := <-w.events:
			batch = append(batch, event)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (w *Writer) flush(ctx context.Context, batch []Event) {
	logger := myLogger.FromContext(ctx, "audit_writer")

	rows := make([]database.AuditEventRow, len(batch))
	for i, event := range batch {
		rows[i] = toRow(event)
	}

	if err := w.store.BatchInsertAuditEvents(rows); err != nil {
		logger.Error("audit batch insert failed, falling back to single inserts", "error", err)
		for i, row := range rows {
			if err := w.store.InsertSingleAuditEvent(row); err != nil {
				logger.Error("failed to insert audit event", "event_type", batch[i].EventType, "error", err)
			}
		}
	}

	if w.publisher == nil {
		return
	}
	for _, event := range batch {
		if err := w.publisher.Publish(ctx, event); err != nil {
			// AMQP delivery is best-effort (spec.md §7): the durable
			// Postgres write already happened, so a publish failure is
			// logged and dropped, never retried against the hot path.
			logger.Warn("audit event amqp publish failed", "event_type", event.EventType, "error", err)
		}
	}
}

func toRow(event Event) database.AuditEventRow {
	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte("{}")
	}
	return database.AuditEventRow{
		EventType:     event.EventType,
		UserID:        event.UserID,
		SKU:           event.SKU,
		ReservationID: event.ReservationID,
		Details:       string(details),
		Timestamp:     event.Timestamp,
	}
}

// AMQPPublisher publishes audit events to a topic exchange as JSON
// messages, using rabbitmq/amqp091-go the way the rest of the example
// pack's messaging-backed services publish domain events.
type AMQPPublisher struct {
	channel  *amqp091.Channel
	exchange string
}

// NewAMQPPublisher declares exchange as a durable topic exchange and
// returns a Publisher bound to it.
func NewAMQPPublisher(conn *amqp091.Connection, exchange string) (*AMQPPublisher, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		return nil, err
	}
	return &AMQPPublisher{channel: channel, exchange: exchange}, nil
}

// Close closes the underlying AMQP channel.
func (p *AMQPPublisher) Close() error {
	return p.channel.Close()
}

// Publish publishes event as JSON to p.exchange, routed by event type.
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, event.EventType, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        body,
		Timestamp:   event.Timestamp,
	})
}
