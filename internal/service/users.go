// ABOUTME: User service: registration, login, refresh, profile and admin user management
// ABOUTME: Passwords are bcrypt-hashed; registration auto-creates a default collection

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/vellum/internal/auth"
	"github.com/2389/vellum/internal/store"
)

// ErrInvalidInput is returned for malformed registration or update fields.
var ErrInvalidInput = errors.New("invalid input")

// DefaultCollectionName is the collection auto-created at registration.
const DefaultCollectionName = "default"

// Username validation: alphanumeric + underscores, starting with a letter,
// 3-32 characters.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{2,31}$`)

// TokenPair is the login/refresh response: a fresh access+refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // access token lifetime in seconds
}

// Users implements account operations over the user and collection stores.
type Users struct {
	users       store.UserStore
	collections store.CollectionStore
	signer      *auth.Signer
	policy      *auth.BootstrapPolicy
	logger      *slog.Logger
}

// NewUsers creates the user service.
func NewUsers(users store.UserStore, collections store.CollectionStore, signer *auth.Signer, policy *auth.BootstrapPolicy) *Users {
	return &Users{
		users:       users,
		collections: collections,
		signer:      signer,
		policy:      policy,
		logger:      slog.Default().With("component", "users"),
	}
}

// Register creates a new account with a bcrypt password hash and an
// auto-created default collection. Email and username must be unique.
func (s *Users) Register(ctx context.Context, email, username, password string) (*store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	if !strings.Contains(email, "@") || len(email) < 3 {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if !usernameRegex.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-32 characters, letters, digits and underscores", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email or username already registered", auth.ErrConflict)
		}
		return nil, err
	}

	if err := s.collections.CreateCollection(ctx, &store.Collection{
		OwnerID: user.ID,
		Name:    DefaultCollectionName,
	}); err != nil {
		// Every account comes with its default collection; roll the account
		// back rather than leave it half-created.
		if delErr := s.users.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.Error("rolling back registration", "user_id", user.ID, "error", delErr)
		}
		return nil, fmt.Errorf("creating default collection: %w", err)
	}

	s.logger.Info("registered user", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// Login verifies a password and issues a session token pair. Every failure
// (unknown username, wrong password, deactivated account) collapses to
// ErrUnauthenticated.
func (s *Users) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn comparable time so unknown usernames aren't distinguishable.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
			return nil, auth.ErrUnauthenticated
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, auth.ErrUnauthenticated
	}
	if !user.Active {
		return nil, auth.ErrUnauthenticated
	}

	return s.issuePair(user)
}

// Refresh exchanges a valid, unexpired refresh token for a new access+refresh
// pair. The old refresh token is not reusable in spirit; clients must adopt
// the returned pair.
func (s *Users) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, auth.ErrUnauthenticated
	}

	user, err := s.users.GetUser(ctx, claims.Subject)
	if err != nil {
		return nil, auth.ErrUnauthenticated
	}
	if !user.Active {
		return nil, auth.ErrUnauthenticated
	}

	return s.issuePair(user)
}

func (s *Users) issuePair(user *store.User) (*TokenPair, error) {
	access, refresh, err := s.signer.IssuePair(user)
	if err != nil {
		return nil, fmt.Errorf("issuing session tokens: %w", err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.signer.AccessTTL().Seconds()),
	}, nil
}

// Profile returns the account behind a user-scoped context.
func (s *Users) Profile(ctx context.Context, a *auth.AuthContext) (*store.User, error) {
	if a == nil || !a.IsUserScoped() {
		return nil, auth.ErrUnauthenticated
	}
	user, err := s.users.GetUser(ctx, a.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, auth.ErrUnauthenticated
		}
		return nil, err
	}
	return user, nil
}

// ListUsers returns accounts matching the filter. Admin only.
func (s *Users) ListUsers(ctx context.Context, a *auth.AuthContext, filter store.UserFilter) ([]*store.User, error) {
	if err := auth.RequireScope(a, store.ScopeAdmin); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx, filter)
}

// GetUser returns a single account. Admin only.
func (s *Users) GetUser(ctx context.Context, a *auth.AuthContext, id string) (*store.User, error) {
	if err := auth.RequireScope(a, store.ScopeAdmin); err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user: %w", auth.ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

// UserUpdate carries optional admin-initiated account changes.
type UserUpdate struct {
	Email    *string
	Username *string
	Password *string
	Active   *bool
	Admin    *bool
}

// UpdateUser applies an admin-initiated update. Deactivation (Active=false)
// invalidates all of the user's outstanding session and user-scoped
// credentials on their next resolution.
func (s *Users) UpdateUser(ctx context.Context, a *auth.AuthContext, id string, update UserUpdate) (*store.User, error) {
	if err := auth.RequireScope(a, store.ScopeAdmin); err != nil {
		return nil, err
	}

	user, err := s.users.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user: %w", auth.ErrNotFound)
		}
		return nil, err
	}

	if update.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*update.Email))
		if !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
		}
		user.Email = email
	}
	if update.Username != nil {
		if !usernameRegex.MatchString(*update.Username) {
			return nil, fmt.Errorf("%w: invalid username", ErrInvalidInput)
		}
		user.Username = *update.Username
	}
	if update.Password != nil {
		if len(*update.Password) < 8 {
			return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*update.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing password: %w", err)
		}
		user.PasswordHash = string(hash)
	}
	if update.Active != nil {
		user.Active = *update.Active
	}
	if update.Admin != nil {
		user.Admin = *update.Admin
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email or username already taken", auth.ErrConflict)
		}
		return nil, err
	}

	s.logger.Info("updated user", "user_id", user.ID, "actor", a.UserID)
	return user, nil
}

// DeleteUser removes an account and everything it owns. Admins cannot delete
// themselves.
func (s *Users) DeleteUser(ctx context.Context, a *auth.AuthContext, id string) error {
	if err := auth.RequireScope(a, store.ScopeAdmin); err != nil {
		return err
	}
	if a.UserID != "" && a.UserID == id {
		return fmt.Errorf("%w: cannot delete your own account", auth.ErrConflict)
	}

	if err := s.users.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("user: %w", auth.ErrNotFound)
		}
		return err
	}

	s.logger.Info("deleted user", "user_id", id, "actor", a.UserID)
	return nil
}

// Promote grants the admin flag via the bootstrap policy. See
// auth.BootstrapPolicy for the secret-waiver contract.
func (s *Users) Promote(ctx context.Context, targetUserID, presentedSecret string) (*store.User, error) {
	return s.policy.Promote(ctx, targetUserID, presentedSecret)
}
