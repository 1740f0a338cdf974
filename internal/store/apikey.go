// ABOUTME: Store methods for org-scoped API keys.
// ABOUTME: Only the sha256 key hash is persisted; the raw key is shown once.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKey is a machine credential scoped to one org. Its role caps the
// effective org role of any request authenticated with it.
type APIKey struct {
	ID              uuid.UUID
	OrgID           uuid.UUID
	CreatedByUserID uuid.UUID
	KeyHash         string
	Name            string
	Role            string
	CreatedAt       time.Time
	ExpiresAt       *time.Time
	LastUsedAt      *time.Time
}

const apiKeyColumns = "id, org_id, created_by_user_id, key_hash, name, role, created_at, expires_at, last_used_at"

func scanAPIKey(row pgx.Row) (*APIKey, error) {
	var k APIKey
	err := row.Scan(&k.ID, &k.OrgID, &k.CreatedByUserID, &k.KeyHash, &k.Name, &k.Role,
		&k.CreatedAt, &k.ExpiresAt, &k.LastUsedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// CreateAPIKey inserts an API key row.
func (s *Store) CreateAPIKey(ctx context.Context, orgID, createdBy uuid.UUID, keyHash, name, role string, expiresAt *time.Time) (*APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (org_id, created_by_user_id, key_hash, name, role, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+apiKeyColumns,
		orgID, createdBy, keyHash, name, role, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return k, nil
}

// LookupAPIKey returns the unexpired key with the given hash, or (nil, nil)
// if no such key exists.
func (s *Store) LookupAPIKey(ctx context.Context, keyHash string) (*APIKey, error) {
	k, err := scanAPIKey(s.pool.QueryRow(ctx,
		`SELECT `+apiKeyColumns+`
		   FROM api_keys
		  WHERE key_hash = $1 AND (expires_at IS NULL OR expires_at > now())`,
		keyHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	return k, nil
}

// UpdateAPIKeyLastUsed sets last_used_at to now.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		"UPDATE api_keys SET last_used_at = now() WHERE id = $1", id); err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

// ListAPIKeys returns all keys for an org, newest first.
func (s *Store) ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]APIKey, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+apiKeyColumns+" FROM api_keys WHERE org_id = $1 ORDER BY created_at DESC",
		orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out = append(out, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return out, nil
}

// RevokeAPIKey deletes the key within an org. Returns false if not found.
func (s *Store) RevokeAPIKey(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM api_keys WHERE org_id = $1 AND id = $2", orgID, id)
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
