package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// SecretPrefix marks every bentham API secret
	SecretPrefix = "btm_"

	// secretEntropyBytes is the randomness behind each secret
	secretEntropyBytes = 32
)

// GenerateSecret produces a new API secret: the btm_ prefix followed by
// 32 bytes of randomness in URL-safe base64. The alphabet after the
// prefix is [A-Za-z0-9_-] and the total length is 47 characters.
func GenerateSecret() (string, error) {
	bytes := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	return SecretPrefix + base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashSecret computes the stored form of a secret: SHA-256 over the
// UTF-8 bytes, rendered as 64 lowercase hex characters.
func HashSecret(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:])
}

// ValidHash reports whether s is a well-formed stored hash
func ValidHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
