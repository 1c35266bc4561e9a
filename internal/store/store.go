// ABOUTME: Store interfaces and data types for vellum persistence
// ABOUTME: Defines User, Collection, Document, PAT and CAT records plus store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint is violated
// (email, username, or a collection name already taken by the same owner)
var ErrDuplicate = errors.New("already exists")

// Permission is the two-level capability attached to a collection token.
type Permission string

const (
	PermissionRead      Permission = "read"
	PermissionReadWrite Permission = "read_write"
)

// Valid reports whether p is a known permission level.
func (p Permission) Valid() bool {
	return p == PermissionRead || p == PermissionReadWrite
}

// Scope is a coarse capability attached to a user or session token.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
	ScopeAdmin Scope = "admin"
)

// User represents a registered account.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Active       bool
	Admin        bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Collection is a named, owned partition of documents.
type Collection struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a stored document within a collection.
type Document struct {
	ID           string
	CollectionID string
	Title        string
	Content      string
	ContentHash  string
	DocumentType string // "markdown" or "text"
	Metadata     map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PAT is a persisted user-scoped token record. The raw secret is never
// stored; only its SHA-256 digest.
type PAT struct {
	ID        string
	UserID    string
	Label     string
	Digest    string
	Scopes    []Scope
	ExpiresAt *time.Time
	LastUsed  *time.Time
	Active    bool
	CreatedAt time.Time
}

// CAT is a persisted collection-scoped token record.
type CAT struct {
	ID           string
	CollectionID string
	CreatedBy    string // user id of the creator, may be empty
	Label        string
	Digest       string
	Permission   Permission
	ExpiresAt    *time.Time
	LastUsed     *time.Time
	Active       bool
	CreatedAt    time.Time
}

// UserFilter narrows ListUsers results.
type UserFilter struct {
	Query  string // matches username or email substring
	Limit  int
	Offset int
}

// UserStore defines persistence operations for users.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	SetUserAdmin(ctx context.Context, id string, admin bool) error
	SetUserActive(ctx context.Context, id string, active bool) error
	ListUsers(ctx context.Context, filter UserFilter) ([]*User, error)
	CountAdmins(ctx context.Context) (int, error)
	DeleteUser(ctx context.Context, id string) error
}

// CollectionStore defines persistence operations for collections.
type CollectionStore interface {
	CreateCollection(ctx context.Context, c *Collection) error
	GetCollection(ctx context.Context, id string) (*Collection, error)
	GetCollectionByName(ctx context.Context, ownerID, name string) (*Collection, error)
	ListCollectionsByOwner(ctx context.Context, ownerID string) ([]*Collection, error)
	RenameCollection(ctx context.Context, id, name string) error
	DeleteCollection(ctx context.Context, id string) error
}

// DocumentStore defines persistence operations for documents.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, collectionID string, limit, offset int) ([]*Document, error)
	UpdateDocument(ctx context.Context, d *Document) error
	DeleteDocument(ctx context.Context, id string) error
	CountDocuments(ctx context.Context, collectionID string) (int, error)
}

// PATStore defines persistence operations for user-scoped tokens.
type PATStore interface {
	InsertPAT(ctx context.Context, t *PAT) error
	GetPAT(ctx context.Context, id string) (*PAT, error)
	FindPATByDigest(ctx context.Context, digest string) (*PAT, error)
	ListPATsByUser(ctx context.Context, userID string) ([]*PAT, error)
	SetPATActive(ctx context.Context, id string, active bool) error
	// RotatePAT atomically deactivates the record and inserts a replacement
	// carrying the same label, owner, scopes and expiry. A concurrent digest
	// lookup observes either the old row active or the new row active, never
	// a state with neither.
	RotatePAT(ctx context.Context, id string, replacement *PAT) error
	TouchPAT(ctx context.Context, id string, when time.Time) error
	DeletePAT(ctx context.Context, id string) error
}

// CATStore defines persistence operations for collection-scoped tokens.
type CATStore interface {
	InsertCAT(ctx context.Context, t *CAT) error
	GetCAT(ctx context.Context, id string) (*CAT, error)
	FindCATByDigest(ctx context.Context, digest string) (*CAT, error)
	ListCATsByUser(ctx context.Context, userID string) ([]*CAT, error)
	ListCATsByCollection(ctx context.Context, collectionID string) ([]*CAT, error)
	FindActiveCATsByCollection(ctx context.Context, collectionID string) ([]*CAT, error)
	SetCATActive(ctx context.Context, id string, active bool) error
	// RotateCAT mirrors RotatePAT for collection tokens.
	RotateCAT(ctx context.Context, id string, replacement *CAT) error
	TouchCAT(ctx context.Context, id string, when time.Time) error
	DeleteCAT(ctx context.Context, id string) error
}

// Store is the full persistence surface backed by a single database.
type Store interface {
	UserStore
	CollectionStore
	DocumentStore
	PATStore
	CATStore

	// Close releases any resources held by the store
	Close() error
}
