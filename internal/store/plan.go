// ABOUTME: Store methods for test plans and test cases.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TestPlan groups test cases within a project.
type TestPlan struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Title       string
	Description string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TestCase is a single scripted check, optionally attached to a plan.
type TestCase struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	PlanID    *uuid.UUID
	Title     string
	Steps     string
	Expected  string
	CreatedBy uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

const planColumns = "id, project_id, title, description, created_by, created_at, updated_at"

func scanPlan(row pgx.Row) (*TestPlan, error) {
	var p TestPlan
	err := row.Scan(&p.ID, &p.ProjectID, &p.Title, &p.Description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTestPlan inserts a plan into the project.
func (s *Store) CreateTestPlan(ctx context.Context, projectID uuid.UUID, title, description string, createdBy uuid.UUID) (*TestPlan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx,
		`INSERT INTO test_plans (project_id, title, description, created_by)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+planColumns,
		projectID, title, description, createdBy))
	if err != nil {
		return nil, fmt.Errorf("create test plan: %w", err)
	}
	return p, nil
}

// GetTestPlan returns the plan with the given ID, or (nil, nil) if not found.
func (s *Store) GetTestPlan(ctx context.Context, id uuid.UUID) (*TestPlan, error) {
	p, err := scanPlan(s.pool.QueryRow(ctx,
		"SELECT "+planColumns+" FROM test_plans WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get test plan: %w", err)
	}
	return p, nil
}

// ListTestPlans returns all plans in a project ordered by title.
func (s *Store) ListTestPlans(ctx context.Context, projectID uuid.UUID) ([]TestPlan, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+planColumns+" FROM test_plans WHERE project_id = $1 ORDER BY title", projectID)
	if err != nil {
		return nil, fmt.Errorf("list test plans: %w", err)
	}
	defer rows.Close()

	var out []TestPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test plan: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list test plans: %w", err)
	}
	return out, nil
}

const caseColumns = "id, project_id, plan_id, title, steps, expected, created_by, created_at, updated_at"

func scanCase(row pgx.Row) (*TestCase, error) {
	var c TestCase
	err := row.Scan(&c.ID, &c.ProjectID, &c.PlanID, &c.Title, &c.Steps, &c.Expected,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateTestCase inserts a case into the project.
func (s *Store) CreateTestCase(ctx context.Context, projectID uuid.UUID, planID *uuid.UUID, title, steps, expected string, createdBy uuid.UUID) (*TestCase, error) {
	c, err := scanCase(s.pool.QueryRow(ctx,
		`INSERT INTO test_cases (project_id, plan_id, title, steps, expected, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+caseColumns,
		projectID, planID, title, steps, expected, createdBy))
	if err != nil {
		return nil, fmt.Errorf("create test case: %w", err)
	}
	return c, nil
}

// GetTestCase returns the case with the given ID, or (nil, nil) if not found.
func (s *Store) GetTestCase(ctx context.Context, id uuid.UUID) (*TestCase, error) {
	c, err := scanCase(s.pool.QueryRow(ctx,
		"SELECT "+caseColumns+" FROM test_cases WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get test case: %w", err)
	}
	return c, nil
}

// ListTestCases returns all cases in a plan ordered by title.
func (s *Store) ListTestCases(ctx context.Context, planID uuid.UUID) ([]TestCase, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+caseColumns+" FROM test_cases WHERE plan_id = $1 ORDER BY title", planID)
	if err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	defer rows.Close()

	var out []TestCase
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test case: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list test cases: %w", err)
	}
	return out, nil
}
