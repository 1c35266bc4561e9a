// Package auth resolves bearer credentials into authorization decisions.
//
// # Credential Kinds
//
// Every request, from either front door, carries one of four credential
// kinds (plus a grandfathered fifth):
//
//   - Session tokens: HS256-signed JWTs issued by login/refresh. Stateless;
//     accepted only by the HTTP API front door.
//   - User tokens (PATs): "pat_live_..." secrets stored as SHA-256 digests,
//     inheriting the owning user's full scope set.
//   - Collection tokens (CATs): "cat_live_..." secrets bound to exactly one
//     collection with a read or read_write permission level.
//   - Static admin secret: a single configured value used exclusively by the
//     admin promotion operation.
//   - Legacy env tokens: configured opaque keys, each isolated to a stable
//     collection derived from the key itself.
//
// # Resolution
//
// Resolve is the sole entry point. It classifies the raw string by shape and
// prefix, runs the matching validator against the stores, and produces an
// immutable AuthContext or ErrUnauthenticated. Validator-internal
// distinctions (unknown digest, revoked, expired, inactive principal) are
// collapsed at this boundary so response content cannot be used to enumerate
// credentials; the detail survives only in logs.
//
// Session and user token validation re-check the referenced user's active
// flag against the live store on every call, so deactivating a user takes
// effect immediately rather than at the session token's natural expiry.
//
// # Permission Primitives
//
// Operation handlers never inspect scopes directly. They call RequireScope,
// RequireWrite, RequireOwnerOrAdmin, or Resolver.RequireCollectionAccess,
// each of which fails with ErrForbidden, distinct from ErrUnauthenticated so
// transports can answer 403 versus 401.
//
// # Admin Bootstrap
//
// BootstrapPolicy pins the promotion contract: the very first promotion
// (zero admins) needs no secret; every later promotion requires the
// configured static admin secret. See bootstrap.go.
package auth
