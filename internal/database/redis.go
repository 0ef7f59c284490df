package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"

	myLogger "github.com/flashreserve/reservation-core/internal/logger"
	"github.com/flashreserve/reservation-core/internal/reservation"
)

const (
	stockKeyPrefix       = "stock:"
	recordKeyPrefix      = "rsv:"
	expiryIndexKey       = "rsv:expiry_index"
	idempotencyKeyPrefix = "idem:"
)

func stockKey(sku string) string            { return stockKeyPrefix + sku }
func recordKey(reservationID string) string { return recordKeyPrefix + reservationID }

// NewRedisClient dials address and returns a RedisClient backed by a
// connection pool, mirroring the teacher's pool sizing and dial-timeout
// shape for the hot-state store.
func NewRedisClient(ctx context.Context, address string) (*RedisClient, error) {
	logger := myLogger.FromContext(ctx, "redis")

	pool := &redis.Pool{
		MaxIdle:         50,
		MaxActive:       200,
		IdleTimeout:     240 * time.Second,
		Wait:            true,
		MaxConnLifetime: 10 * time.Minute,

		Dial: func() (redis.Conn, error) {
			logger.Info("redis | dialing", "address", address)
			return redis.Dial("tcp", address,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialReadTimeout(3*time.Second),
				redis.DialWriteTimeout(3*time.Second),
			)
		},

		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}

	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		logger.Error("redis | ping failed", "error", err)
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}

	return &RedisClient{pool: pool}, nil
}

// Close closes the Redis connection pool.
func (r *RedisClient) Close() error {
	return r.pool.Close()
}

// HealthCheck checks if the Redis connection is alive.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	logger := myLogger.FromContext(ctx, "redis")

	conn := r.pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	if err != nil {
		logger.Error("redis health check | failed to ping Redis", "error", err)
		return err
	}
	return nil
}

// Initialize sets sku's available stock. It is a plain SET rather than a
// script — there is no concurrent reader to serialise against on first
// load, per spec.md §4.A.
func (r *RedisClient) Initialize(ctx context.Context, sku string, quantity int64) error {
	logger := myLogger.FromContext(ctx, "redis")

	conn := r.pool.Get()
	defer conn.Close()

	_, err := conn.Do("SET", stockKey(sku), quantity)
	if err != nil {
		logger.Error("redis initialize | failed to set stock", "sku", sku, "error", err)
		return err
	}
	logger.Info("redis initialize | initialized sku", "sku", sku, "quantity", quantity)
	return nil
}

// Status returns sku's current available stock. initialized is false if
// the SKU has never been initialized.
func (r *RedisClient) Status(ctx context.Context, sku string) (available int64, initialized bool, err error) {
	conn := r.pool.Get()
	defer conn.Close()

	val, err := redis.Int64(conn.Do("GET", stockKey(sku)))
	if err == redis.ErrNil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

// Reserve atomically checks availability and decrements sku's stock,
// writing the reservation record and its expiry-index entry in the same
// script invocation — no window exists between the check and the
// decrement (spec.md §4.C, §9).
func (r *RedisClient) Reserve(ctx context.Context, reservationID, sku, userID string, quantity int64, now time.Time, ttl time.Duration) (reservation.ReserveResult, error) {
	logger := myLogger.FromContext(ctx, "redis")

	conn := r.pool.Get()
	defer conn.Close()

	expiresAt := now.Add(ttl).Unix()

	reply, err := conn.Do("EVAL", reserveScript, 3,
		stockKey(sku), recordKey(reservationID), expiryIndexKey,
		quantity, userID, sku, now.Unix(), expiresAt, int(ttl.Seconds()), reservationID,
	)
	if err != nil {
		logger.Error("redis reserve | script failed", "sku", sku, "reservation_id", reservationID, "error", err)
		return reservation.ReserveResult{}, err
	}

	values, err := redis.Values(reply, nil)
	if err != nil {
		return reservation.ReserveResult{}, err
	}
	var status string
	var available int64
	if _, err := redis.Scan(values, &status, &available); err != nil {
		return reservation.ReserveResult{}, err
	}

	logger.Debug("redis reserve | completed", "sku", sku, "reservation_id", reservationID, "status", status, "available", available)
	return reservation.ReserveResult{Status: reservation.ReserveStatus(status), Available: available}, nil
}

// Cancel performs the ownership-checked cancel mutation: restores
// quantity units to sku's stock and deletes the reservation record, or
// reports not_found/forbidden without mutating anything.
func (r *RedisClient) Cancel(ctx context.Context, reservationID, userID string) (reservation.MutationResult, error) {
	logger := myLogger.FromContext(ctx, "redis")

	conn := r.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("EVAL", cancelScript, 2,
		recordKey(reservationID), expiryIndexKey,
		reservationID, userID, stockKeyPrefix,
	)
	result, err := parseMutationReply(reply, err)
	if err != nil {
		logger.Error("redis cancel | script failed", "reservation_id", reservationID, "error", err)
	}
	return result, err
}

// Expire performs the no-ownership-check restore+delete used by the
// sweeper. An already-terminal reservation is reported, not treated as
// an error — a concurrent confirm or cancel may have already resolved it.
func (r *RedisClient) Expire(ctx context.Context, reservationID string) (reservation.MutationResult, error) {
	logger := myLogger.FromContext(ctx, "redis")

	conn := r.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("EVAL", expireScript, 2,
		recordKey(reservationID), expiryIndexKey,
		reservationID, stockKeyPrefix,
	)
	result, err := parseMutationReply(reply, err)
	if err != nil {
		logger.Error("redis expire | script failed", "reservation_id", reservationID, "error", err)
	}
	return result, err
}

// ConfirmFetchDelete performs the ownership-checked compare-and-delete
// spec.md §9 sanctions as the replacement for a client-side WATCH/MULTI
// loop: it reads and deletes the reservation record atomically, without
// restoring stock, so a reservation already swept by an expiry tick
// simply reports not_found rather than racing the sweeper.
func (r *RedisClient) ConfirmFetchDelete(ctx context.Context, reservationID, userID string) (reservation.MutationResult, error) {
	logger := myLogger.FromContext(ctx, "redis")

	conn := r.pool.Get()
	defer conn.Close()

	reply, err := conn.Do("EVAL", confirmFetchDeleteScript, 2,
		recordKey(reservationID), expiryIndexKey,
		reservationID, userID,
	)
	result, err := parseMutationReply(reply, err)
	if err != nil {
		logger.Error("redis confirm | script failed", "reservation_id", reservationID, "error", err)
	}
	return result, err
}

// PopDueExpirations returns up to limit reservation IDs whose expiry
// timestamp is at or before asOf, used by the sweeper to find work
// without scanning every record (spec.md §4.E).
func (r *RedisClient) PopDueExpirations(ctx context.Context, asOf time.Time, limit int) ([]string, error) {
	conn := r.pool.Get()
	defer conn.Close()

	return redis.Strings(conn.Do("ZRANGEBYSCORE", expiryIndexKey,
		"-inf", asOf.Unix(), "LIMIT", 0, limit))
}

// AcquireIdempotencySlot attempts to atomically claim key for ttl,
// writing placeholderValue if and only if no slot currently exists. The
// boolean result tells the caller whether they won the race (true) or a
// concurrent request with the same key already claimed it (false).
func (r *RedisClient) AcquireIdempotencySlot(ctx context.Context, key, placeholderValue string, ttl time.Duration) (bool, error) {
	conn := r.pool.Get()
	defer conn.Close()

	reply, err := redis.String(conn.Do("SET", idempotencyKeyPrefix+key, placeholderValue,
		"NX", "EX", int(ttl.Seconds())))
	if err == redis.ErrNil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return reply == "OK", nil
}

// GetIdempotencySlot returns the value stored for key, or ("", false) if
// no slot exists (expired, never claimed, or released after a failure).
func (r *RedisClient) GetIdempotencySlot(ctx context.Context, key string) (string, bool, error) {
	conn := r.pool.Get()
	defer conn.Close()

	val, err := redis.String(conn.Do("GET", idempotencyKeyPrefix+key))
	if err == redis.ErrNil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetIdempotencySlot overwrites key's slot with value, keeping ttl. Used
// to replace the pending placeholder with the final outcome once a
// reserve attempt completes.
func (r *RedisClient) SetIdempotencySlot(ctx context.Context, key, value string, ttl time.Duration) error {
	conn := r.pool.Get()
	defer conn.Close()

	_, err := conn.Do("SET", idempotencyKeyPrefix+key, value, "EX", int(ttl.Seconds()))
	return err
}

// ReleaseIdempotencySlot deletes key's slot, used when a reserve attempt
// fails before producing a durable outcome so a retry isn't stuck behind
// a placeholder that will never resolve.
func (r *RedisClient) ReleaseIdempotencySlot(ctx context.Context, key string) error {
	conn := r.pool.Get()
	defer conn.Close()

	_, err := conn.Do("DEL", idempotencyKeyPrefix+key)
	return err
}
