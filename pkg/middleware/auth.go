package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dralsallum/theKnot-sub000/pkg/httputil"
)

type contextKeyType string

const userIDKey contextKeyType = "user_id"

// UserIDHeader is set by the API gateway after it authenticates the caller.
const UserIDHeader = "X-User-ID"

// RequireUserID rejects requests that do not carry a gateway-injected user id
// and stores the id in the request context.
func RequireUserID(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = UserIDHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(header))
			if userID == "" {
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
					Error: &httputil.ErrorResponse{
						Code:    "UNAUTHORIZED",
						Message: "missing " + header + " header",
					},
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}
