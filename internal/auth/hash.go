// ABOUTME: Secret generation and one-way digesting for PAT and CAT credentials
// ABOUTME: Raw secrets are prefix + 43-char URL-safe suffix; only SHA-256 digests are stored

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Credential prefixes. The classifier dispatches on these, so they must stay
// distinct and must never prefix each other.
const (
	PATPrefix = "pat_live_"
	CATPrefix = "cat_live_"
)

// secretEntropyBytes is the random payload per generated secret. 32 bytes
// encode to a 43-character URL-safe suffix.
const secretEntropyBytes = 32

// Digest returns the hex SHA-256 of a raw credential string. Secrets are
// high-entropy random values, not user-chosen passwords, so an unkeyed fast
// digest is sufficient for at-rest storage.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// NewPATSecret generates a fresh user-scoped token secret.
func NewPATSecret() (string, error) {
	return newSecret(PATPrefix)
}

// NewCATSecret generates a fresh collection-scoped token secret.
func NewCATSecret() (string, error) {
	return newSecret(CATPrefix)
}

func newSecret(prefix string) (string, error) {
	buf := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
