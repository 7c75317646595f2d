package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/repository"
)

// fakeAccountStore keeps persisted aggregate snapshots in memory and applies
// the same conditional-revocation rule as the gorm store, so stale writers
// lose with ErrSessionRevoked here too.
type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*domain.Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[uuid.UUID]*domain.Account)}
}

func cloneAccount(a *domain.Account) *domain.Account {
	c := *a
	c.Tokens = make([]domain.SessionToken, len(a.Tokens))
	copy(c.Tokens, a.Tokens)
	c.Rehydrate()
	return &c
}

func (s *fakeAccountStore) Create(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Username == account.Username {
			return repository.ErrUsernameTaken
		}
	}
	s.accounts[account.ID] = cloneAccount(account)
	account.Rehydrate()
	return nil
}

func (s *fakeAccountStore) FindByID(id uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (s *fakeAccountStore) FindByUsername(username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return cloneAccount(a), nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (s *fakeAccountStore) FindBySessionKey(secret string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		for i := range a.Tokens {
			if a.Tokens[i].Secret == secret {
				return cloneAccount(a), nil
			}
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (s *fakeAccountStore) ListPaged(query repository.AccountListQuery) (repository.PageResult[domain.Account], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result repository.PageResult[domain.Account]
	for _, a := range s.accounts {
		result.Items = append(result.Items, *cloneAccount(a))
	}
	result.Total = int64(len(result.Items))
	result.Page, result.PageSize, result.TotalPages = 1, len(result.Items), 1
	return result, nil
}

func (s *fakeAccountStore) Update(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	persisted, ok := s.accounts[account.ID]
	if !ok {
		return repository.ErrAccountNotFound
	}
	changes := account.Changes()
	for _, id := range changes.Revoked {
		applied := false
		for i := range persisted.Tokens {
			if persisted.Tokens[i].ID == id {
				if persisted.Tokens[i].Revoked {
					return repository.ErrSessionRevoked
				}
				persisted.Tokens[i].Revoke()
				applied = true
			}
		}
		if !applied {
			return repository.ErrSessionRevoked
		}
	}
	persisted.Tokens = append(persisted.Tokens, changes.Added...)
	persisted.Rehydrate()
	account.Rehydrate()
	return nil
}

func (s *fakeAccountStore) DeleteByID(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *fakeAccountStore) PurgeTerminalTokens(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for _, a := range s.accounts {
		kept := a.Tokens[:0]
		for _, t := range a.Tokens {
			if (t.Revoked && !t.UpdatedAt.After(cutoff)) || !t.ExpiresAt.After(cutoff) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		a.Tokens = kept
		a.Rehydrate()
	}
	return removed, nil
}

func newAuthServiceForTest(t *testing.T, store repository.AccountStore) *AuthService {
	t.Helper()
	return NewAuthService(store, NewInMemoryNegativeLookupCacheStore(), time.Minute, 24*time.Hour)
}

func registerTestAccount(t *testing.T, svc *AuthService, username, password string) *domain.Account {
	t.Helper()
	account, err := svc.Register(context.Background(), username, password)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return account
}

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	store := newFakeAccountStore()
	svc := newAuthServiceForTest(t, store)
	registerTestAccount(t, svc, "alice", "pw")

	account, err := svc.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	tok := account.NewestToken()
	if tok == nil || !tok.Active(time.Now()) {
		t.Fatal("login must yield a fresh active session token")
	}

	persisted, err := store.FindBySessionKey(tok.Secret)
	if err != nil {
		t.Fatalf("session must be persisted: %v", err)
	}
	if persisted.Username != "alice" {
		t.Fatalf("expected the session to belong to alice, got %q", persisted.Username)
	}
}

func TestAuthServiceRegisterDuplicateUsername(t *testing.T) {
	svc := newAuthServiceForTest(t, newFakeAccountStore())
	registerTestAccount(t, svc, "alice", "pw")
	if _, err := svc.Register(context.Background(), "alice", "other"); !errors.Is(err, repository.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestAuthServiceLoginFailuresAreUniform(t *testing.T) {
	store := newFakeAccountStore()
	svc := newAuthServiceForTest(t, store)
	registerTestAccount(t, svc, "alice", "pw")

	if _, err := svc.Login(context.Background(), "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody", "pw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown username: expected ErrInvalidCredentials, got %v", err)
	}

	// failed logins persist nothing
	a, err := store.FindByUsername("alice")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(a.Tokens) != 0 {
		t.Fatalf("expected no tokens after failed logins, got %d", len(a.Tokens))
	}
}

func TestAuthServiceLoginUsesNegativeLookupCache(t *testing.T) {
	store := newFakeAccountStore()
	svc := newAuthServiceForTest(t, store)

	// first miss populates the cache
	if _, err := svc.Login(context.Background(), "ghost", "pw"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	hit, err := svc.negCache.Get(context.Background(), usernameNamespace, "ghost")
	if err != nil {
		t.Fatalf("cache get: %v", err)
	}
	if !hit {
		t.Fatal("expected the unknown username to be cached as a miss")
	}

	// registering a new account clears cached misses
	registerTestAccount(t, svc, "ghost", "pw")
	if _, err := svc.Login(context.Background(), "ghost", "pw"); err != nil {
		t.Fatalf("login after register must succeed, got %v", err)
	}
}

func TestAuthServiceRotateIsSingleUse(t *testing.T) {
	store := newFakeAccountStore()
	svc := newAuthServiceForTest(t, store)
	registerTestAccount(t, svc, "alice", "pw")

	account, err := svc.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	oldSecret := account.NewestToken().Secret

	rotated, err := svc.Rotate(context.Background(), oldSecret)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	newSecret := rotated.NewestToken().Secret
	if newSecret == oldSecret {
		t.Fatal("rotation must mint a fresh secret")
	}

	if _, err := svc.Rotate(context.Background(), oldSecret); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on reuse, got %v", err)
	}
	if _, err := svc.Rotate(context.Background(), newSecret); err != nil {
		t.Fatalf("the replacement token must still rotate, got %v", err)
	}
}

func TestAuthServiceRotateExpiredToken(t *testing.T) {
	store := newFakeAccountStore()
	svc := newAuthServiceForTest(t, store)
	svc.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	registerTestAccount(t, svc, "alice", "pw")

	account, err := svc.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	secret := account.NewestToken().Secret

	svc.now = time.Now
	if _, err := svc.Rotate(context.Background(), secret); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestAuthServiceRotateUnknownSecret(t *testing.T) {
	svc := newAuthServiceForTest(t, newFakeAccountStore())
	if _, err := svc.Rotate(context.Background(), "no-such-secret"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthServiceLogoutIsIdempotent(t *testing.T) {
	store := newFakeAccountStore()
	svc := newAuthServiceForTest(t, store)
	registerTestAccount(t, svc, "alice", "pw")

	account, err := svc.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	secret := account.NewestToken().Secret

	if err := svc.Logout(context.Background(), secret); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := svc.Logout(context.Background(), secret); err != nil {
		t.Fatalf("repeated logout must succeed, got %v", err)
	}

	// a logged-out token no longer rotates
	if _, err := svc.Rotate(context.Background(), secret); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestAuthServiceLogoutUnknownSecret(t *testing.T) {
	svc := newAuthServiceForTest(t, newFakeAccountStore())
	if err := svc.Logout(context.Background(), "no-such-secret"); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
