package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/flashreserve/reservation-core/internal/reservation"
)

// errorResponse mirrors middleware.ErrorResponse's shape so a reservation
// error and a recovered panic look the same on the wire.
type errorResponse struct {
	Error     string                 `json:"error"`
	Kind      string                 `json:"kind,omitempty"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// statusForKind maps a reservation.Kind to its HTTP status code
// (spec.md §7).
func statusForKind(kind reservation.Kind) int {
	switch kind {
	case reservation.KindInsufficient:
		return http.StatusConflict
	case reservation.KindNotInitialized:
		return http.StatusConflict
	case reservation.KindNotFound:
		return http.StatusNotFound
	case reservation.KindForbidden:
		return http.StatusForbidden
	case reservation.KindAlreadyTerminal:
		return http.StatusConflict
	case reservation.KindInvalidInput:
		return http.StatusBadRequest
	case reservation.KindRateLimited:
		return http.StatusTooManyRequests
	case reservation.KindUnauthenticated:
		return http.StatusUnauthorized
	case reservation.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error response, mapping a
// *reservation.Error to its status code and an unrecognized error to a
// 500.
func writeError(w http.ResponseWriter, requestID string, err error) {
	if rerr, ok := reservation.AsError(err); ok {
		writeJSONError(w, statusForKind(rerr.Kind), rerr.Message, string(rerr.Kind), rerr.Detail, requestID)
		return
	}
	writeJSONError(w, http.StatusInternalServerError, "internal server error", "", nil, requestID)
}

func writeJSONError(w http.ResponseWriter, status int, message, kind string, detail map[string]interface{}, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error:     message,
		Kind:      kind,
		Detail:    detail,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
