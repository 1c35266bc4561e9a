// ABOUTME: Error taxonomy for authentication and authorization outcomes
// ABOUTME: Validator-internal failure reasons are collapsed to ErrUnauthenticated at the boundary

package auth

import "errors"

// Externally visible outcomes. Transports map these to response codes:
// ErrUnauthenticated to 401, ErrForbidden to 403, ErrNotFound to 404,
// ErrConflict to 409.
var (
	// ErrUnauthenticated covers every credential failure: missing, malformed,
	// unknown, expired, revoked, or belonging to an inactive principal.
	// Callers cannot distinguish these cases.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the credential resolved but lacks the required
	// scope, permission, or ownership.
	ErrForbidden = errors.New("permission denied")

	// ErrNotFound is surfaced only after an authorization check passed.
	ErrNotFound = errors.New("not found")

	// ErrConflict covers duplicate promotion and similar state conflicts.
	ErrConflict = errors.New("conflict")

	// ErrAdminSecretUnset means promotion requires the static admin secret
	// but none is configured for this process.
	ErrAdminSecretUnset = errors.New("admin secret not configured")
)

// failureReason is the validator-internal diagnostic retained only for
// logging. It never crosses the resolver boundary.
type failureReason string

const (
	reasonMissing          failureReason = "missing_credential"
	reasonUnrecognized     failureReason = "unrecognized_format"
	reasonSessionDenied    failureReason = "session_token_not_allowed"
	reasonBadSignature     failureReason = "bad_signature"
	reasonExpired          failureReason = "expired"
	reasonNotAccessToken   failureReason = "not_an_access_token"
	reasonUnknownDigest    failureReason = "unknown_digest"
	reasonRevoked          failureReason = "revoked"
	reasonUserInactive     failureReason = "principal_inactive"
	reasonUserMissing      failureReason = "principal_missing"
	reasonCollectionGone   failureReason = "collection_missing"
	reasonStoreUnavailable failureReason = "store_unavailable"
)
