// ABOUTME: Store methods for user accounts: creation, lookup, token versioning.
// ABOUTME: These are global-table operations — no org scoping applies.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// User is a platform account. PasswordHash is nil for OAuth-only accounts.
type User struct {
	ID                  uuid.UUID
	Email               string
	DisplayName         string
	PasswordHash        *string
	PasswordHashVersion int
	GlobalRoles         []string
	TokenVersion        int
	CreatedAt           time.Time
	LastLoginAt         *time.Time
}

const userColumns = "id, email, display_name, password_hash, password_hash_version, global_roles, token_version, created_at, last_login_at"

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash,
		&u.PasswordHashVersion, &u.GlobalRoles, &u.TokenVersion, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row. Pass an empty passwordHash for
// OAuth-only accounts.
func (s *Store) CreateUser(ctx context.Context, email, displayName, passwordHash string, hashVersion int) (*User, error) {
	var hash *string
	if passwordHash != "" {
		hash = &passwordHash
	}
	query, args, err := s.sb.Insert("users").
		Columns("email", "display_name", "password_hash", "password_hash_version").
		Values(email, displayName, hash, hashVersion).
		Suffix("RETURNING " + userColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build create user: %w", err)
	}
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByID returns the user with the given ID, or (nil, nil) if not found.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query, args, err := s.sb.Select(userColumns).From("users").Where("id = ?", id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get user: %w", err)
	}
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email, or (nil, nil) if not
// found. SECURITY: call only from auth flows — never from org-admin endpoints.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query, args, err := s.sb.Select(userColumns).From("users").Where("email = ?", email).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get user by email: %w", err)
	}
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// CountUsers returns the total number of user accounts.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// SetGlobalRoles replaces the user's platform-wide roles. Restricted to
// callers holding user:update at the global scope.
func (s *Store) SetGlobalRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	query, args, err := s.sb.Update("users").Set("global_roles", roles).Where("id = ?", id).ToSql()
	if err != nil {
		return fmt.Errorf("build set global roles: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("set global roles: %w", err)
	}
	return nil
}

// UpdateLastLogin sets last_login_at to now for the given user.
func (s *Store) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, "UPDATE users SET last_login_at = now() WHERE id = $1", id); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// IncrementTokenVersion increments token_version and returns the new value.
// Used by logout-all to immediately invalidate all outstanding refresh tokens.
func (s *Store) IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	var v int
	err := s.pool.QueryRow(ctx,
		"UPDATE users SET token_version = token_version + 1 WHERE id = $1 RETURNING token_version", id,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("increment token version: %w", err)
	}
	return v, nil
}

// UpdatePasswordHash replaces the password hash and bumps token_version to
// invalidate all active sessions (forces re-login after password change).
func (s *Store) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string, hashVersion int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users
		    SET password_hash = $2, password_hash_version = $3, token_version = token_version + 1
		  WHERE id = $1`,
		id, passwordHash, hashVersion)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}
