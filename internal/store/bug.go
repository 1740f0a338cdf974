// ABOUTME: Store methods for bugs filed against test runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Bug is a defect filed within a project, optionally linked to a run.
type Bug struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	RunID     *uuid.UUID
	Title     string
	Severity  string
	Status    string
	CreatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

const bugColumns = "id, project_id, run_id, title, severity, status, created_by, created_at, updated_at"

func scanBug(row pgx.Row) (*Bug, error) {
	var b Bug
	err := row.Scan(&b.ID, &b.ProjectID, &b.RunID, &b.Title, &b.Severity, &b.Status,
		&b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBug files a bug in the project.
func (s *Store) CreateBug(ctx context.Context, projectID uuid.UUID, runID *uuid.UUID, title, severity string, createdBy uuid.UUID) (*Bug, error) {
	b, err := scanBug(s.pool.QueryRow(ctx,
		`INSERT INTO bugs (project_id, run_id, title, severity, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+bugColumns,
		projectID, runID, title, severity, createdBy))
	if err != nil {
		return nil, fmt.Errorf("create bug: %w", err)
	}
	return b, nil
}

// GetBug returns the bug with the given ID, or (nil, nil) if not found.
func (s *Store) GetBug(ctx context.Context, id uuid.UUID) (*Bug, error) {
	b, err := scanBug(s.pool.QueryRow(ctx,
		"SELECT "+bugColumns+" FROM bugs WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bug: %w", err)
	}
	return b, nil
}

// ListBugs returns all bugs in a project, newest first.
func (s *Store) ListBugs(ctx context.Context, projectID uuid.UUID) ([]Bug, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+bugColumns+" FROM bugs WHERE project_id = $1 ORDER BY created_at DESC",
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	defer rows.Close()

	var out []Bug
	for rows.Next() {
		b, err := scanBug(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bug: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bugs: %w", err)
	}
	return out, nil
}

// UpdateBug updates title, severity, and status. Returns (nil, nil) if not found.
func (s *Store) UpdateBug(ctx context.Context, id uuid.UUID, title, severity, status string) (*Bug, error) {
	b, err := scanBug(s.pool.QueryRow(ctx,
		`UPDATE bugs SET title = $2, severity = $3, status = $4, updated_at = now()
		  WHERE id = $1
		 RETURNING `+bugColumns,
		id, title, severity, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update bug: %w", err)
	}
	return b, nil
}

// DeleteBug removes the bug. Returns false if it did not exist.
func (s *Store) DeleteBug(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM bugs WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete bug: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
