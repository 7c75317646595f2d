package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auth-session-service/internal/security"
)

func newTokensForTest() *security.AccessTokenManager {
	return security.NewAccessTokenManager("auth-session-service", "0123456789abcdef0123456789abcdef", time.Minute)
}

func protectedHandler(t *testing.T, wantUsername string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, ok := UsernameFromContext(r.Context())
		if !ok {
			t.Fatal("expected username in request context")
		}
		if username != wantUsername {
			t.Fatalf("expected username %q, got %q", wantUsername, username)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddlewareMissingTokenReturnsUnauthorized(t *testing.T) {
	mw := AuthMiddleware(newTokensForTest())
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	mw(protectedHandler(t, "")).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestAuthMiddlewareInvalidTokenReturnsUnauthorized(t *testing.T) {
	mw := AuthMiddleware(newTokensForTest())
	for _, header := range []string{
		"Bearer garbage",
		"Bearer ",
		"Basic dXNlcjpwdw==",
	} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", header)

		mw(protectedHandler(t, "")).ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
	}
}

func TestAuthMiddlewareValidTokenPassesUsername(t *testing.T) {
	tokens := newTokensForTest()
	raw, err := tokens.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	AuthMiddleware(tokens)(protectedHandler(t, "alice")).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAuthMiddlewareRejectsExpiredToken(t *testing.T) {
	expired := security.NewAccessTokenManager("auth-session-service", "0123456789abcdef0123456789abcdef", -time.Minute)
	raw, err := expired.Issue("alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)

	AuthMiddleware(newTokensForTest())(protectedHandler(t, "")).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
