// ABOUTME: Store methods for test runs, including the filtered listing query.
// ABOUTME: GetTestRun resolves a run to its owning project for scoped authorization.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TestRun is an execution of (part of) a test plan within a project.
type TestRun struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	PlanID    *uuid.UUID
	Title     string
	Status    string
	CreatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RunFilter narrows ListTestRuns. Zero values mean "no constraint".
type RunFilter struct {
	Status    string
	CreatedBy *uuid.UUID
	Limit     uint64
	Offset    uint64
}

const runColumns = "id, project_id, plan_id, title, status, created_by, created_at, updated_at"

func scanRun(row pgx.Row) (*TestRun, error) {
	var r TestRun
	err := row.Scan(&r.ID, &r.ProjectID, &r.PlanID, &r.Title, &r.Status,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateTestRun inserts a run into the project.
func (s *Store) CreateTestRun(ctx context.Context, projectID uuid.UUID, planID *uuid.UUID, title string, createdBy uuid.UUID) (*TestRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`INSERT INTO test_runs (project_id, plan_id, title, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+runColumns,
		projectID, planID, title, createdBy))
	if err != nil {
		return nil, fmt.Errorf("create test run: %w", err)
	}
	return r, nil
}

// GetTestRun returns the run with the given ID, or (nil, nil) if not found.
// The returned ProjectID and CreatedBy are what the resource scope resolver
// feeds into the policy context.
func (s *Store) GetTestRun(ctx context.Context, id uuid.UUID) (*TestRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		"SELECT "+runColumns+" FROM test_runs WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get test run: %w", err)
	}
	return r, nil
}

// ListTestRuns returns runs in a project matching filter, newest first.
func (s *Store) ListTestRuns(ctx context.Context, projectID uuid.UUID, filter RunFilter) ([]TestRun, error) {
	q := s.sb.Select(runColumns).
		From("test_runs").
		Where(sq.Eq{"project_id": projectID}).
		OrderBy("created_at DESC")
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.CreatedBy != nil {
		q = q.Where(sq.Eq{"created_by": *filter.CreatedBy})
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list test runs: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list test runs: %w", err)
	}
	defer rows.Close()

	var out []TestRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test run: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list test runs: %w", err)
	}
	return out, nil
}

// UpdateTestRun updates title and status. Returns (nil, nil) if not found.
func (s *Store) UpdateTestRun(ctx context.Context, id uuid.UUID, title, status string) (*TestRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`UPDATE test_runs SET title = $2, status = $3, updated_at = now()
		  WHERE id = $1
		 RETURNING `+runColumns,
		id, title, status))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update test run: %w", err)
	}
	return r, nil
}

// DeleteTestRun removes the run. Returns false if it did not exist.
func (s *Store) DeleteTestRun(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM test_runs WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete test run: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
