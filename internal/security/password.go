package security

import "golang.org/x/crypto/bcrypt"

// PasswordHashCost is the fixed bcrypt work factor for credential hashes.
const PasswordHashCost = 12

func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), PasswordHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash. A
// malformed hash fails closed as a non-match; bcrypt's comparison is
// constant-time on the digest.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
