package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// The account schema stores salt and hash in separate columns, so the
// primitive keeps the salt explicit instead of packing it into the hash
// string the way bcrypt does.
const (
	passwordSaltLength = 16
	passwordKeyLength  = 32
	passwordIterations = 100_000
)

// HashPassword generates a fresh salt and derives a password hash.
// Both values are hex encoded.
func HashPassword(password string) (salt, hash string, err error) {
	if password == "" {
		return "", "", ErrNoEmptyString
	}

	raw := make([]byte, passwordSaltLength)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}

	salt = hex.EncodeToString(raw)
	return salt, hashWithSalt(password, salt), nil
}

// IsPasswordMatch verifies a cleartext password against a stored salt and
// hash in constant time.
func IsPasswordMatch(salt, password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	derived := hashWithSalt(password, salt)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(hash)) == 1
}

func hashWithSalt(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), passwordIterations, passwordKeyLength, sha256.New)
	return hex.EncodeToString(key)
}
