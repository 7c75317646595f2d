package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionToken is the persisted, revocable refresh credential for one account.
// Revocation and expiry are independent axes; both are checked on every use.
type SessionToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Secret    string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	AccountID uuid.UUID `gorm:"type:uuid;index;not null" json:"account_id"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	Revoked   bool      `gorm:"not null;default:false" json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newSessionToken(accountID uuid.UUID, secret string, now time.Time, ttl time.Duration) SessionToken {
	return SessionToken{
		ID:        uuid.Must(uuid.NewV7()),
		Secret:    secret,
		AccountID: accountID,
		ExpiresAt: now.Add(ttl),
	}
}

func (t *SessionToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Active reports whether the token can still prove a session.
func (t *SessionToken) Active(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}

// Revoke is monotonic: once revoked, a token never becomes active again.
func (t *SessionToken) Revoke() {
	t.Revoked = true
}
