package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is the single outward failure for access credentials.
// Bad signature and expiry are deliberately indistinguishable to callers.
var ErrUnauthenticated = errors.New("unauthenticated")

// AccessTokenManager issues and verifies the short-lived, self-contained
// access credential. Validity is signature plus expiry only; there is no
// store lookup and no revocation check.
type AccessTokenManager struct {
	issuer string
	secret []byte
	ttl    time.Duration
}

func NewAccessTokenManager(issuer, secret string, ttl time.Duration) *AccessTokenManager {
	return &AccessTokenManager{
		issuer: issuer,
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (m *AccessTokenManager) TTL() time.Duration { return m.ttl }

// Issue signs an access credential for an already authenticated username.
func (m *AccessTokenManager) Issue(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks signature and expiry and returns the subject username.
func (m *AccessTokenManager) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", ErrUnauthenticated
	}
	return claims.Subject, nil
}
