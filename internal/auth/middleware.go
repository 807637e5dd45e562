package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/serpdesk/serpdesk/internal/apperr"
)

type contextKey struct{}

var userKey contextKey

// UserID extracts the authenticated user from ctx. The second return is false
// when the request did not pass through Middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey).(string)
	return id, ok
}

// WithUserID returns a child context carrying the user identity. Exposed for
// tests and in-process callers that bypass the HTTP layer.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// Middleware verifies the Authorization bearer token and stores the user ID in
// the request context. Requests without a valid token are rejected before any
// downstream work.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, apperr.ErrAuthMissing)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeError(w, apperr.ErrAuthMissing)
				return
			}

			userID, err := UserIDFromToken(token, secret)
			if err != nil {
				writeError(w, apperr.ErrAuthInvalid)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(err))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  apperr.Code(err),
	})
}
