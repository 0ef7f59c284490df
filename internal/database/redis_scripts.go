package database

import (
	"github.com/gomodule/redigo/redis"

	"github.com/flashreserve/reservation-core/internal/reservation"
)

// Lua scripts implementing the Reservation Engine's atomic operations
// (spec.md §4.C). Each script is the single unit of serialisation the
// spec requires between the availability check and the decrement (or,
// for cancel/expire/confirm, between the existence/ownership check and
// the mutation) — the same "EVAL a script, parse the flat reply" idiom
// the teacher's checkout scripts use, generalised from counter-only
// mutations to counter+hash+sorted-set mutations.
const (
	// reserveScript performs the atomic check-and-decrement plus
	// reservation-record and expiry-index writes.
	// KEYS: [1] stock_key, [2] record_key, [3] index_key
	// ARGV: [1] quantity, [2] user_id, [3] sku, [4] created_at (unix),
	//       [5] expires_at (unix), [6] ttl_seconds (not read), [7] reservation_id
	// The record key gets no Redis TTL: it stays until cancel, confirm or
	// the sweeper's expire removes it, so a lagging sweeper still restores
	// its stock.
	// Returns: {status, available}
	//   status: "ok" | "not_initialized" | "insufficient"
	//   available: remaining stock on "ok", current stock on "insufficient", 0 otherwise
	reserveScript = `
		local stock_key = KEYS[1]
		local record_key = KEYS[2]
		local index_key = KEYS[3]

		local quantity = tonumber(ARGV[1])
		local user_id = ARGV[2]
		local sku = ARGV[3]
		local created_at = ARGV[4]
		local expires_at = tonumber(ARGV[5])
		local reservation_id = ARGV[7]

		if redis.call('EXISTS', stock_key) == 0 then
			return {'not_initialized', 0}
		end

		local available = tonumber(redis.call('GET', stock_key))
		if available < quantity then
			return {'insufficient', available}
		end

		local remaining = redis.call('DECRBY', stock_key, quantity)

		redis.call('HSET', record_key,
			'sku', sku,
			'quantity', quantity,
			'user_id', user_id,
			'created_at', created_at,
			'expires_at', expires_at)

		redis.call('ZADD', index_key, expires_at, reservation_id)

		return {'ok', remaining}
	`

	// cancelScript performs the ownership-checked atomic restore+delete
	// used by Engine.Cancel. The stock key is not known until the record
	// is read, so it is derived inside the script from stock_key_prefix
	// and the record's sku field rather than passed as a KEYS entry —
	// safe on the single-instance Redis deployment this module targets,
	// not a clustered one.
	// KEYS: [1] record_key, [2] index_key
	// ARGV: [1] reservation_id, [2] user_id, [3] stock_key_prefix
	// Returns: {status, sku, quantity, record_user_id}
	//   status: "ok" | "not_found" | "forbidden"
	cancelScript = `
		local record_key = KEYS[1]
		local index_key = KEYS[2]
		local reservation_id = ARGV[1]
		local user_id = ARGV[2]
		local stock_key_prefix = ARGV[3]

		local fields = redis.call('HGETALL', record_key)
		if #fields == 0 then
			return {'not_found', '', 0, ''}
		end

		local data = {}
		for i = 1, #fields, 2 do
			data[fields[i]] = fields[i + 1]
		end

		if data['user_id'] ~= user_id then
			return {'forbidden', data['sku'], tonumber(data['quantity']), data['user_id']}
		end

		local quantity = tonumber(data['quantity'])
		redis.call('INCRBY', stock_key_prefix .. data['sku'], quantity)
		redis.call('DEL', record_key)
		redis.call('ZREM', index_key, reservation_id)

		return {'ok', data['sku'], quantity, data['user_id']}
	`

	// expireScript performs the same restore+delete as cancelScript but
	// without an ownership check, used by the sweeper. An absent record
	// (already confirmed, cancelled, or swept by a concurrent tick) is
	// reported as already_terminal and never mutates the counter.
	// KEYS: [1] record_key, [2] index_key
	// ARGV: [1] reservation_id, [2] stock_key_prefix
	// Returns: {status, sku, quantity, user_id}
	//   status: "ok" | "already_terminal"
	expireScript = `
		local record_key = KEYS[1]
		local index_key = KEYS[2]
		local reservation_id = ARGV[1]
		local stock_key_prefix = ARGV[2]

		local fields = redis.call('HGETALL', record_key)
		if #fields == 0 then
			redis.call('ZREM', index_key, reservation_id)
			return {'already_terminal', '', 0, ''}
		end

		local data = {}
		for i = 1, #fields, 2 do
			data[fields[i]] = fields[i + 1]
		end

		local quantity = tonumber(data['quantity'])
		redis.call('INCRBY', stock_key_prefix .. data['sku'], quantity)
		redis.call('DEL', record_key)
		redis.call('ZREM', index_key, reservation_id)

		return {'ok', data['sku'], quantity, data['user_id']}
	`

	// confirmFetchDeleteScript is the equivalent compare-and-delete
	// primitive spec.md §9 sanctions in place of a client-side
	// WATCH/MULTI loop: it observes the record and deletes it in one
	// atomic step, so a sweeper that has already deleted the record
	// (lost the race) is indistinguishable from a record that never
	// existed — both resolve to "not_found" with no further mutation.
	// KEYS: [1] record_key, [2] index_key
	// ARGV: [1] reservation_id, [2] user_id
	// Returns: {status, sku, quantity, user_id, expires_at}
	//   status: "ok" | "not_found" | "forbidden"
	confirmFetchDeleteScript = `
		local record_key = KEYS[1]
		local index_key = KEYS[2]
		local reservation_id = ARGV[1]
		local user_id = ARGV[2]

		local fields = redis.call('HGETALL', record_key)
		if #fields == 0 then
			return {'not_found', '', 0, '', 0}
		end

		local data = {}
		for i = 1, #fields, 2 do
			data[fields[i]] = fields[i + 1]
		end

		if data['user_id'] ~= user_id then
			return {'forbidden', data['sku'], tonumber(data['quantity']), data['user_id'], tonumber(data['expires_at'])}
		end

		redis.call('DEL', record_key)
		redis.call('ZREM', index_key, reservation_id)

		return {'ok', data['sku'], tonumber(data['quantity']), data['user_id'], tonumber(data['expires_at'])}
	`
)

// parseMutationReply converts the raw Lua array reply into a
// reservation.MutationResult.
func parseMutationReply(reply interface{}, err error) (reservation.MutationResult, error) {
	if err != nil {
		return reservation.MutationResult{}, err
	}
	values, err := redis.Values(reply, nil)
	if err != nil {
		return reservation.MutationResult{}, err
	}
	var status string
	var sku, userID string
	var quantity, expiresAt int64
	// ExpiresAt is only present in confirmFetchDeleteScript's reply; the
	// cancel/expire scripts return four elements, confirm returns five.
	switch len(values) {
	case 4:
		if _, err := redis.Scan(values, &status, &sku, &quantity, &userID); err != nil {
			return reservation.MutationResult{}, err
		}
	case 5:
		if _, err := redis.Scan(values, &status, &sku, &quantity, &userID, &expiresAt); err != nil {
			return reservation.MutationResult{}, err
		}
	default:
		return reservation.MutationResult{}, redis.ErrNil
	}
	return reservation.MutationResult{
		Status:    reservation.MutationStatus(status),
		SKU:       sku,
		Quantity:  quantity,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}, nil
}
