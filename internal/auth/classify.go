// ABOUTME: Credential classifier mapping raw bearer strings to credential kinds
// ABOUTME: Shape and prefix checks only; never touches storage

package auth

import (
	"crypto/subtle"
	"strings"
)

// Kind identifies which validator applies to a raw bearer credential.
type Kind string

const (
	KindSessionToken    Kind = "session_token"
	KindUserToken       Kind = "user_token"
	KindCollectionToken Kind = "collection_token"
	KindAdminSecret     Kind = "admin_secret"
	KindLegacyToken     Kind = "legacy_token"
	KindUnrecognized    Kind = "unrecognized"
)

// StaticCredentials is the immutable process-wide credential configuration.
// It is loaded once at startup and read concurrently without synchronization.
type StaticCredentials struct {
	// AdminSecret authorizes admin promotion once an admin exists. Empty
	// means unconfigured.
	AdminSecret string

	// LegacyTokens are grandfathered opaque keys, each isolated to a
	// deterministically derived collection with full read_write permission.
	LegacyTokens []string
}

// Classify inspects a raw bearer string and determines which validator
// applies. Rules are evaluated in order: session-token shape, user prefix,
// collection prefix, admin secret, legacy list, unrecognized. An empty string
// classifies as unrecognized; "no credential supplied" is a transport concern.
func Classify(raw string, static StaticCredentials) Kind {
	if raw == "" {
		return KindUnrecognized
	}

	if looksLikeSessionToken(raw) {
		return KindSessionToken
	}

	if strings.HasPrefix(raw, PATPrefix) {
		return KindUserToken
	}

	if strings.HasPrefix(raw, CATPrefix) {
		return KindCollectionToken
	}

	if static.AdminSecret != "" && constantTimeEquals(raw, static.AdminSecret) {
		return KindAdminSecret
	}

	for _, legacy := range static.LegacyTokens {
		if constantTimeEquals(raw, legacy) {
			return KindLegacyToken
		}
	}

	return KindUnrecognized
}

// looksLikeSessionToken reports whether the string has the structural shape
// of a signed session token: three non-empty segments separated by two dots.
func looksLikeSessionToken(raw string) bool {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// constantTimeEquals compares two strings without leaking length or content
// through timing. Both sides are digested first so unequal lengths still take
// the full comparison.
func constantTimeEquals(a, b string) bool {
	da := Digest(a)
	db := Digest(b)
	return subtle.ConstantTimeCompare([]byte(da), []byte(db)) == 1
}

// LegacyCollectionID derives the stable, isolated collection identifier for a
// legacy token. Each key maps to the same collection on every request without
// a database record.
func LegacyCollectionID(rawToken string) string {
	return "docs_" + Digest(rawToken)[:16]
}
