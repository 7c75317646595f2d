package security

import (
	"crypto/rand"
	"encoding/base64"
)

const sessionSecretBytes = 32

// NewSessionSecret returns a fresh high-entropy opaque secret for a session
// token. Secrets are compared by exact value and never logged.
func NewSessionSecret() (string, error) {
	buf := make([]byte, sessionSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
