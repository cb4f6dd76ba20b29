package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// DefaultTokenBytes matches the entropy of the platform's legacy
// 48-byte URL-safe share tokens.
const DefaultTokenBytes = 48

// GenerateToken returns a URL-safe opaque token with n random bytes.
func GenerateToken(n int) (string, error) {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateShareToken returns a token sized for cross-tenant share grants.
func GenerateShareToken() (string, error) {
	return GenerateToken(DefaultTokenBytes)
}

// GenerateVerificationToken returns a shorter token for email
// verification and password reset links.
func GenerateVerificationToken() (string, error) {
	return GenerateToken(32)
}
