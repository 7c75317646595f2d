package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"auth-session-service/internal/security"
)

var (
	// ErrInvalidCredentials deliberately covers both a wrong password and an
	// unknown username so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers an absent, revoked or expired session token.
	ErrInvalidToken = errors.New("invalid token")
)

// Account is the aggregate root owning its session tokens. All session
// mutations (issue, rotate, revoke) go through this type; persistence happens
// outside, in the account store.
type Account struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string         `gorm:"size:255;uniqueIndex;not null" json:"username"`
	PasswordHash string         `gorm:"size:128;not null" json:"-"`
	Tokens       []SessionToken `gorm:"foreignKey:AccountID" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// secretIndex maps token secrets to positions in Tokens, preserving
	// insertion order for newest-token semantics.
	secretIndex map[string]int
	// baseline holds each token's revoked flag as loaded from the store, so
	// Changes can report which revocations happened in this mutation cycle.
	baseline map[uuid.UUID]bool
}

// AccountChanges is the write set of one mutation cycle: tokens appended and
// tokens whose revoked flag flipped since the aggregate was loaded.
type AccountChanges struct {
	Added   []SessionToken
	Revoked []uuid.UUID
}

func NewAccount(username, password string) (*Account, error) {
	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := &Account{
		ID:           uuid.Must(uuid.NewV7()),
		Username:     username,
		PasswordHash: hash,
		Tokens:       make([]SessionToken, 0, 1),
	}
	a.Rehydrate()
	return a, nil
}

// Rehydrate rebuilds the aggregate's internal bookkeeping after its fields
// have been populated from persisted records. The account store must call it
// whenever it assembles an aggregate.
func (a *Account) Rehydrate() {
	a.secretIndex = make(map[string]int, len(a.Tokens))
	a.baseline = make(map[uuid.UUID]bool, len(a.Tokens))
	for i := range a.Tokens {
		a.secretIndex[a.Tokens[i].Secret] = i
		a.baseline[a.Tokens[i].ID] = a.Tokens[i].Revoked
	}
}

// Authenticate verifies the password and, on success, issues a fresh session
// token. A failed check mutates nothing.
func (a *Account) Authenticate(password string, now time.Time, ttl time.Duration) error {
	if !security.VerifyPassword(password, a.PasswordHash) {
		return ErrInvalidCredentials
	}
	secret, err := security.NewSessionSecret()
	if err != nil {
		return err
	}
	a.append(newSessionToken(a.ID, secret, now, ttl))
	return nil
}

// Rotate exchanges one active session token for exactly one new token and
// revokes the old one. Presenting the same secret twice always fails the
// second time.
func (a *Account) Rotate(oldSecret string, now time.Time, ttl time.Duration) error {
	old := a.tokenBySecret(oldSecret)
	if old == nil {
		return ErrInvalidToken
	}
	if !old.Active(now) {
		return ErrInvalidToken
	}
	secret, err := security.NewSessionSecret()
	if err != nil {
		return err
	}
	old.Revoke()
	a.append(newSessionToken(a.ID, secret, now, ttl))
	return nil
}

// EndSession revokes the token matching the secret. Revoking an expired or
// already revoked token still succeeds: the caller's intent is satisfied.
func (a *Account) EndSession(secret string) error {
	t := a.tokenBySecret(secret)
	if t == nil {
		return ErrInvalidToken
	}
	t.Revoke()
	return nil
}

// NewestToken returns the most recently issued session token, or nil when the
// account has none. Login and rotation responses are built from it.
func (a *Account) NewestToken() *SessionToken {
	if len(a.Tokens) == 0 {
		return nil
	}
	return &a.Tokens[len(a.Tokens)-1]
}

// Changes diffs the aggregate against the state it was loaded with.
func (a *Account) Changes() AccountChanges {
	var c AccountChanges
	for i := range a.Tokens {
		t := &a.Tokens[i]
		wasRevoked, known := a.baseline[t.ID]
		if !known {
			c.Added = append(c.Added, *t)
			continue
		}
		if t.Revoked && !wasRevoked {
			c.Revoked = append(c.Revoked, t.ID)
		}
	}
	return c
}

func (a *Account) append(t SessionToken) {
	a.Tokens = append(a.Tokens, t)
	if a.secretIndex == nil {
		a.secretIndex = make(map[string]int, 1)
	}
	a.secretIndex[t.Secret] = len(a.Tokens) - 1
}

func (a *Account) tokenBySecret(secret string) *SessionToken {
	if secret == "" {
		return nil
	}
	i, ok := a.secretIndex[secret]
	if !ok {
		return nil
	}
	return &a.Tokens[i]
}
