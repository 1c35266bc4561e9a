// Package store provides persistent storage for vellum using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces:
//
//   - UserStore: Account records with admin/active flags
//   - CollectionStore: Named, owned document partitions
//   - DocumentStore: Documents within collections
//   - PATStore: User-scoped token records (digest lookup, rotation)
//   - CATStore: Collection-scoped token records (digest lookup, rotation,
//     the active-by-collection query backing the deletion guard)
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries.
//
// # Token Records
//
// PAT and CAT rows store only the SHA-256 digest of the raw secret. The raw
// secret exists exactly once, in the create/rotate response, and is not
// recoverable from any read path. Rotation runs revoke-old plus insert-new in
// a single transaction so a concurrent digest lookup observes either the old
// or the new record active, never a transient state with neither.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: Requested entity does not exist
//   - ErrDuplicate: Unique constraint violated (email, username, digest,
//     or collection name per owner)
//
// All methods accept context.Context for cancellation support.
package store
