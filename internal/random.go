package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// DefaultTokenLength is the hex length of refresh and single-use tokens
// (64 random bytes).
const DefaultTokenLength = 128

const maxTokenLength = 1024

// NewHexToken returns length hex characters drawn from crypto/rand.
// length must be even and positive.
func NewHexToken(length int) (string, error) {
	if length <= 0 || length%2 != 0 || length > maxTokenLength {
		return "", errors.New("token length must be a positive even number up to 1024")
	}

	raw := make([]byte, length/2)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashToken returns the SHA-256 digest stores persist instead of a raw token.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}
