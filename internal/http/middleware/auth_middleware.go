package middleware

import (
	"context"
	"net/http"
	"strings"

	"auth-session-service/internal/http/response"
	"auth-session-service/internal/observability"
	"auth-session-service/internal/security"
)

type contextKey string

const usernameContextKey contextKey = "username"

// AuthMiddleware guards protected routes with the bearer access credential.
// Validation is signature plus expiry only; no store lookup happens here, and
// a bad signature is indistinguishable from an expired credential.
func AuthMiddleware(tokens *security.AccessTokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				observability.RecordAccessTokenValidation(r.Context(), "missing")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			raw := strings.TrimSpace(auth[7:])
			username, err := tokens.Verify(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid")
			ctx := context.WithValue(r.Context(), usernameContextKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func UsernameFromContext(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(usernameContextKey).(string)
	return u, ok
}
