package identity

import "golang.org/x/crypto/bcrypt"

// passwordCost is fixed; changing it would invalidate no existing hashes but
// is not configurable by callers.
const passwordCost = 10

// MinPasswordLength is enforced before hashing.
const MinPasswordLength = 8

// HashPassword hashes a room password for storage. The plaintext is never
// persisted or logged.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plaintext matches the stored hash.
func VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
