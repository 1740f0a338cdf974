// ABOUTME: Refresh token rotation state keyed by JTI.
// ABOUTME: used_at and replaced_by_jti track the rotation chain for theft detection.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RefreshToken is one issued refresh JWT. UsedAt is set when the token is
// rotated; ReplacedByJTI points at its successor in the chain.
type RefreshToken struct {
	JTI           uuid.UUID
	UserID        uuid.UUID
	TokenVersion  int
	ExpiresAt     time.Time
	UsedAt        *time.Time
	ReplacedByJTI *uuid.UUID
	CreatedAt     time.Time
}

// CreateRefreshToken records a newly issued refresh token.
func (s *Store) CreateRefreshToken(ctx context.Context, jti, userID uuid.UUID, tokenVersion int, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (jti, user_id, token_version, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		jti, userID, tokenVersion, expiresAt)
	if err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns the token row for jti, or (nil, nil) if unknown.
func (s *Store) GetRefreshToken(ctx context.Context, jti uuid.UUID) (*RefreshToken, error) {
	var t RefreshToken
	err := s.pool.QueryRow(ctx,
		`SELECT jti, user_id, token_version, expires_at, used_at, replaced_by_jti, created_at
		   FROM refresh_tokens WHERE jti = $1`, jti,
	).Scan(&t.JTI, &t.UserID, &t.TokenVersion, &t.ExpiresAt, &t.UsedAt, &t.ReplacedByJTI, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	return &t, nil
}

// MarkRefreshTokenUsed consumes jti, recording replacedBy as its successor.
func (s *Store) MarkRefreshTokenUsed(ctx context.Context, jti, replacedBy uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens
		    SET used_at = now(), replaced_by_jti = $2
		  WHERE jti = $1 AND used_at IS NULL`,
		jti, replacedBy)
	if err != nil {
		return fmt.Errorf("mark refresh token used: %w", err)
	}
	return nil
}

// DeleteExpiredRefreshTokens removes rows past their expiry. Returns the
// number of rows deleted.
func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
