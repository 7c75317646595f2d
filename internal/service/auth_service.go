package service

import (
	"context"
	"errors"
	"time"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/observability"
	"auth-session-service/internal/repository"
)

const usernameNamespace = "auth.username"

// AuthService orchestrates the session lifecycle: every operation is a
// load-mutate-persist sequence over one account aggregate. The store's
// conditional writes keep concurrent rotations single-use.
type AuthService struct {
	store    repository.AccountStore
	negCache NegativeLookupCacheStore
	negTTL   time.Duration

	sessionTTL time.Duration
	now        func() time.Time
}

func NewAuthService(store repository.AccountStore, negCache NegativeLookupCacheStore, negTTL, sessionTTL time.Duration) *AuthService {
	if negCache == nil {
		negCache = NewNoopNegativeLookupCacheStore()
	}
	return &AuthService{
		store:      store,
		negCache:   negCache,
		negTTL:     negTTL,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.Account, error) {
	account, err := domain.NewAccount(username, password)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(account); err != nil {
		return nil, err
	}
	// a freshly registered username invalidates any cached miss for it
	_ = s.negCache.InvalidateNamespace(ctx, usernameNamespace)
	return account, nil
}

// Login verifies credentials and issues a fresh session token. An unknown
// username and a wrong password are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Account, error) {
	if hit, _ := s.negCache.Get(ctx, usernameNamespace, username); hit {
		observability.RecordAuthAttempt(ctx, "login", "invalid_credentials")
		return nil, domain.ErrInvalidCredentials
	}
	account, err := s.store.FindByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			_ = s.negCache.Set(ctx, usernameNamespace, username, s.negTTL)
			observability.RecordAuthAttempt(ctx, "login", "invalid_credentials")
			return nil, domain.ErrInvalidCredentials
		}
		observability.RecordAuthAttempt(ctx, "login", "store_error")
		return nil, err
	}
	if err := account.Authenticate(password, s.now(), s.sessionTTL); err != nil {
		observability.RecordAuthAttempt(ctx, "login", "invalid_credentials")
		return nil, err
	}
	if err := s.store.Update(account); err != nil {
		observability.RecordAuthAttempt(ctx, "login", "store_error")
		return nil, err
	}
	observability.RecordAuthAttempt(ctx, "login", "success")
	return account, nil
}

// Rotate exchanges a refresh secret one-time for a new session token. When a
// concurrent rotation wins the persist race, this one fails with
// ErrInvalidToken instead of silently double-issuing.
func (s *AuthService) Rotate(ctx context.Context, oldSecret string) (*domain.Account, error) {
	account, err := s.store.FindBySessionKey(oldSecret)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordAuthAttempt(ctx, "refresh", "invalid_token")
			return nil, domain.ErrInvalidToken
		}
		observability.RecordAuthAttempt(ctx, "refresh", "store_error")
		return nil, err
	}
	if err := account.Rotate(oldSecret, s.now(), s.sessionTTL); err != nil {
		observability.RecordAuthAttempt(ctx, "refresh", "invalid_token")
		return nil, err
	}
	if err := s.store.Update(account); err != nil {
		if errors.Is(err, repository.ErrSessionRevoked) {
			observability.RecordAuthAttempt(ctx, "refresh", "invalid_token")
			return nil, domain.ErrInvalidToken
		}
		observability.RecordAuthAttempt(ctx, "refresh", "store_error")
		return nil, err
	}
	observability.RecordAuthAttempt(ctx, "refresh", "success")
	return account, nil
}

// Logout revokes the session token matching the secret. Losing a revocation
// race still succeeds: the token is revoked either way.
func (s *AuthService) Logout(ctx context.Context, secret string) error {
	account, err := s.store.FindBySessionKey(secret)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			observability.RecordAuthAttempt(ctx, "logout", "invalid_token")
			return domain.ErrInvalidToken
		}
		observability.RecordAuthAttempt(ctx, "logout", "store_error")
		return err
	}
	if err := account.EndSession(secret); err != nil {
		observability.RecordAuthAttempt(ctx, "logout", "invalid_token")
		return err
	}
	if err := s.store.Update(account); err != nil {
		if errors.Is(err, repository.ErrSessionRevoked) {
			observability.RecordAuthAttempt(ctx, "logout", "success")
			return nil
		}
		observability.RecordAuthAttempt(ctx, "logout", "store_error")
		return err
	}
	observability.RecordAuthAttempt(ctx, "logout", "success")
	return nil
}
