// ABOUTME: Admin bootstrap policy governing the first and subsequent privilege grants
// ABOUTME: Zero admins waives the static secret; afterwards a valid secret is always required

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/vellum/internal/store"
)

// BootstrapPolicy implements admin promotion as a single explicit code path:
//
//   - No admin exists: promotion succeeds without the static admin secret, as
//     long as the target user exists and is not already an admin.
//   - An admin exists: promotion requires the configured static admin secret,
//     regardless of who issues the request.
//
// The transition is one-directional; this policy never demotes.
type BootstrapPolicy struct {
	users       store.UserStore
	adminSecret string
	logger      *slog.Logger
}

// NewBootstrapPolicy creates the promotion policy. An empty adminSecret means
// promotion is only possible while no admin exists.
func NewBootstrapPolicy(users store.UserStore, adminSecret string) *BootstrapPolicy {
	return &BootstrapPolicy{
		users:       users,
		adminSecret: adminSecret,
		logger:      slog.Default().With("component", "bootstrap"),
	}
}

// Promote grants the admin flag to the target user. presentedSecret is the
// raw value from the request; it is ignored while no admin exists.
//
// Failures: ErrAdminSecretUnset when the secret is required but unconfigured,
// ErrUnauthenticated on a wrong secret, ErrNotFound for a missing target, and
// ErrConflict for a duplicate promotion.
func (p *BootstrapPolicy) Promote(ctx context.Context, targetUserID, presentedSecret string) (*store.User, error) {
	count, err := p.users.CountAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting admins: %w", err)
	}

	if count > 0 {
		if p.adminSecret == "" {
			return nil, ErrAdminSecretUnset
		}
		if !constantTimeEquals(presentedSecret, p.adminSecret) {
			p.logger.Warn("promotion rejected: invalid admin secret", "target", targetUserID)
			return nil, ErrUnauthenticated
		}
	}

	user, err := p.users.GetUser(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("user: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if user.Admin {
		return nil, fmt.Errorf("%w: user is already an admin", ErrConflict)
	}

	if err := p.users.SetUserAdmin(ctx, user.ID, true); err != nil {
		return nil, fmt.Errorf("setting admin flag: %w", err)
	}
	user.Admin = true

	p.logger.Info("promoted user to admin", "user_id", user.ID, "username", user.Username, "bootstrap", count == 0)
	return user, nil
}
