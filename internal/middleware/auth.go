package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/hakotapp/hakot/internal/domain"
)

const (
	// UserIDHeader carries the authenticated user id, set by the identity
	// proxy in front of this service.
	UserIDHeader = "X-User-ID"

	// UserIDContextKey is the context key for the authenticated user id.
	UserIDContextKey contextKey = "user_id"
)

// RequireUser rejects requests that carry no authenticated user identity.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			respondError(w, domain.Unauthorized("", "Authentication required"))
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			respondError(w, domain.Unauthorized("", "Authentication required"))
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID retrieves the authenticated user id from the context.
// The zero uuid means the request was not authenticated.
func GetUserID(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(UserIDContextKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// respondError writes a JSON error body. Self-contained so middleware does
// not import the handler package.
func respondError(w http.ResponseWriter, err error) {
	code := domain.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.EUNAUTHORIZED:
		status = http.StatusUnauthorized
	case domain.EINVALID:
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": domain.ErrorMessage(err),
		},
	})
}
