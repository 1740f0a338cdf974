// ABOUTME: Integration tests for store/identity.go — OAuth identity linking.
// ABOUTME: Uses testutil.NewTestDB; each test runs in its own container (t.Parallel).
package store_test

import (
	"context"
	"testing"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/testutil"
)

func TestUserIdentityUpsertAndLookup(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "oauth@example.com", "OAuth User", "", 0)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if err := s.UpsertUserIdentity(ctx, user.ID, "github", "12345", "oauth@example.com"); err != nil {
		t.Fatalf("UpsertUserIdentity: %v", err)
	}

	got, err := s.GetUserByProviderID(ctx, "github", "12345")
	if err != nil {
		t.Fatalf("GetUserByProviderID: %v", err)
	}
	if got == nil || got.ID != user.ID {
		t.Fatalf("GetUserByProviderID = %+v, want user %v", got, user.ID)
	}

	// Same provider ID on a different provider is a different identity.
	missing, err := s.GetUserByProviderID(ctx, "google", "12345")
	if err != nil {
		t.Fatalf("GetUserByProviderID(google): %v", err)
	}
	if missing != nil {
		t.Errorf("google/12345 = %+v, want nil", missing)
	}

	// Upsert with a changed provider email refreshes the record in place.
	if err := s.UpsertUserIdentity(ctx, user.ID, "github", "12345", "renamed@example.com"); err != nil {
		t.Fatalf("UpsertUserIdentity(refresh): %v", err)
	}
	var email string
	if err := s.Pool().QueryRow(ctx,
		"SELECT email FROM user_identities WHERE provider = 'github' AND provider_user_id = '12345'").
		Scan(&email); err != nil {
		t.Fatalf("query identity email: %v", err)
	}
	if email != "renamed@example.com" {
		t.Errorf("identity email = %q, want renamed@example.com", email)
	}
}

func TestGetUserByProviderID_Unknown(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)

	got, err := s.GetUserByProviderID(context.Background(), "github", "999999")
	if err != nil {
		t.Fatalf("GetUserByProviderID: %v", err)
	}
	if got != nil {
		t.Errorf("unknown identity = %+v, want nil", got)
	}
}
