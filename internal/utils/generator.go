package utils

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var counter int64

// generateOpaqueID returns a prefixed opaque identifier built from a
// UUID's random bytes followed by a timestamp and a process-local
// monotonic counter, base32-encoded and truncated to a fixed length. The
// random bytes come first so they survive the truncation; at the
// 20-character length used below, only UUID bytes remain. The scheme
// follows the teacher's checkout-code generator but swaps the entropy
// source for a UUID so the random component carries its own collision
// guarantees.
func generateOpaqueID(prefix string, length int) string {
	timestamp := time.Now().UnixMicro()
	count := atomic.AddInt64(&counter, 1)
	random := uuid.New()

	combined := append(random[:], fmt.Sprintf("-%d-%d", timestamp, count)...)
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(combined)

	if len(encoded) > length {
		encoded = encoded[:length]
	}
	return prefix + encoded
}

// GenerateReservationID returns a new reservation identifier, prefix
// "rsv_" followed by at least 12 base32 characters.
func GenerateReservationID() string {
	return generateOpaqueID("rsv_", 20)
}

// GenerateOrderID returns a new order identifier, prefix "ord_" followed
// by at least 12 base32 characters.
func GenerateOrderID() string {
	return generateOpaqueID("ord_", 20)
}

// GenerateRequestID returns a per-request trace identifier, a
// nanosecond timestamp paired with random bytes rather than the
// opaque-ID scheme above: request IDs are logged on every request, so
// this favors a cheaper, uuid-free source of entropy.
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	randBytes := make([]byte, 16)
	rand.Read(randBytes)
	return fmt.Sprintf("%d-%s", timestamp, hex.EncodeToString(randBytes))
}
