// ABOUTME: External login identity lookup and upsert (GitHub, Google).
// ABOUTME: Lookup is always by provider user ID, never by email.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetUserByProviderID returns the user linked to the given external identity,
// or (nil, nil) when no identity matches.
func (s *Store) GetUserByProviderID(ctx context.Context, provider, providerUserID string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.display_name, u.password_hash, u.password_hash_version,
		        u.global_roles, u.token_version, u.created_at, u.last_login_at
		   FROM users u
		   JOIN user_identities i ON i.user_id = u.id
		  WHERE i.provider = $1 AND i.provider_user_id = $2`,
		provider, providerUserID)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by provider id: %w", err)
	}
	return u, nil
}

// UpsertUserIdentity links an external identity to userID, refreshing the
// stored email on conflict.
func (s *Store) UpsertUserIdentity(ctx context.Context, userID uuid.UUID, provider, providerUserID, email string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_identities (user_id, provider, provider_user_id, email)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (provider, provider_user_id)
		 DO UPDATE SET email = EXCLUDED.email, updated_at = now()`,
		userID, provider, providerUserID, email)
	if err != nil {
		return fmt.Errorf("upsert user identity: %w", err)
	}
	return nil
}
