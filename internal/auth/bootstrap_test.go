// ABOUTME: Tests for the admin bootstrap promotion policy
// ABOUTME: Pins the zero-admin waiver and the secret requirement afterwards

package auth

import (
	"context"
	"errors"
	"testing"
)

func TestPromoteFirstAdminWaivesSecret(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	policy := NewBootstrapPolicy(st, "configured-secret")

	user := createTestUser(t, st, "alice")

	// No admins exist: no secret required, even a wrong one is ignored.
	promoted, err := policy.Promote(ctx, user.ID, "totally-wrong")
	if err != nil {
		t.Fatal(err)
	}
	if !promoted.Admin {
		t.Error("expected admin flag set")
	}

	stored, err := st.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Admin {
		t.Error("admin flag not persisted")
	}
}

func TestPromoteSecondAdminRequiresSecret(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	policy := NewBootstrapPolicy(st, "configured-secret")

	first := createTestUser(t, st, "alice")
	second := createTestUser(t, st, "bob")

	if _, err := policy.Promote(ctx, first.ID, ""); err != nil {
		t.Fatal(err)
	}

	// Wrong secret fails uniformly.
	if _, err := policy.Promote(ctx, second.ID, "wrong"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("got %v, want ErrUnauthenticated", err)
	}
	// Missing secret too.
	if _, err := policy.Promote(ctx, second.ID, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("got %v, want ErrUnauthenticated", err)
	}
	// The real secret passes.
	promoted, err := policy.Promote(ctx, second.ID, "configured-secret")
	if err != nil {
		t.Fatal(err)
	}
	if !promoted.Admin {
		t.Error("expected admin flag set")
	}
}

func TestPromoteWithUnsetSecret(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	policy := NewBootstrapPolicy(st, "")

	first := createTestUser(t, st, "alice")
	second := createTestUser(t, st, "bob")

	// The first promotion still works: the waiver does not need the secret.
	if _, err := policy.Promote(ctx, first.ID, ""); err != nil {
		t.Fatal(err)
	}

	// After that, promotion is impossible until a secret is configured.
	if _, err := policy.Promote(ctx, second.ID, "anything"); !errors.Is(err, ErrAdminSecretUnset) {
		t.Fatalf("got %v, want ErrAdminSecretUnset", err)
	}
}

func TestPromoteDuplicateConflicts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	policy := NewBootstrapPolicy(st, "configured-secret")

	user := createTestUser(t, st, "alice")
	if _, err := policy.Promote(ctx, user.ID, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := policy.Promote(ctx, user.ID, "configured-secret"); !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestPromoteUnknownUser(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	policy := NewBootstrapPolicy(st, "configured-secret")

	if _, err := policy.Promote(ctx, "no-such-user", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
