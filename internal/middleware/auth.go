package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	myLogger "github.com/flashreserve/reservation-core/internal/logger"
)

// userContextKey is the context key the authenticated user_id is stored
// under once BearerAuth has verified the caller's token.
type userContextKey string

const UserIDKey userContextKey = "user_id"

// BearerAuth verifies an "Authorization: Bearer <jwt>" header against
// secret using HMAC, and injects the token's "sub" claim into the request
// context as the verified user_id. It stands in for the identity
// provider spec.md places out of scope: the reservation core only ever
// needs a trustworthy user_id attached to the request.
func BearerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := myLogger.FromContext(r.Context(), "auth_middleware")

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeErrorResponse(w, http.StatusUnauthorized, "missing bearer token", "UNAUTHENTICATED", getRequestIDFromContext(r.Context()))
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrTokenSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("bearer token rejected", "error", err)
				writeErrorResponse(w, http.StatusUnauthorized, "invalid token", "UNAUTHENTICATED", getRequestIDFromContext(r.Context()))
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				writeErrorResponse(w, http.StatusUnauthorized, "invalid claims", "UNAUTHENTICATED", getRequestIDFromContext(r.Context()))
				return
			}

			userID, _ := claims["sub"].(string)
			if userID == "" {
				writeErrorResponse(w, http.StatusUnauthorized, "token missing subject", "UNAUTHENTICATED", getRequestIDFromContext(r.Context()))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IssueToken mints a bearer token for userID, signed with secret and
// valid for ttlSeconds. Exposed for tests and for the admin/dev tooling
// that stands in for the real identity provider.
func IssueToken(secret, userID string, ttlSeconds int) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(ttlSeconds) * time.Second).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// UserIDFromContext returns the verified user_id injected by BearerAuth,
// or "" if the request was never authenticated (e.g. in tests that call
// handlers directly).
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(UserIDKey).(string); ok {
		return v
	}
	return ""
}
