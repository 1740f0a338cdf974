// ABOUTME: Store methods for projects and project memberships.
// ABOUTME: ProjectMemberRole makes *Store the authz engine's membership resolver.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
)

// Project is an org-scoped container for test assets.
type Project struct {
	ID          uuid.UUID
	OrgID       uuid.UUID
	Name        string
	Description string
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
}

// ProjectMemberRow is one row of a project member listing, joined with user info.
type ProjectMemberRow struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Role        string
	AddedAt     time.Time
}

const projectColumns = "id, org_id, name, description, created_by, created_at"

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.Description, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject atomically creates a project and adds creatorID as project admin.
func (s *Store) CreateProject(ctx context.Context, orgID uuid.UUID, name, description string, creatorID uuid.UUID) (*Project, error) {
	var project *Project
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		p, err := scanProject(tx.QueryRow(ctx,
			`INSERT INTO projects (org_id, name, description, created_by)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+projectColumns,
			orgID, name, description, creatorID))
		if err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		project = p
		if _, err := tx.Exec(ctx,
			"INSERT INTO project_members (project_id, user_id, role) VALUES ($1, $2, 'admin')",
			p.ID, creatorID); err != nil {
			return fmt.Errorf("create project admin membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// GetProjectByID returns the project with the given ID, or (nil, nil) if not found.
func (s *Store) GetProjectByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project by id: %w", err)
	}
	return p, nil
}

// ListOrgProjects returns all projects in an org ordered by name.
func (s *Store) ListOrgProjects(ctx context.Context, orgID uuid.UUID) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+projectColumns+" FROM projects WHERE org_id = $1 ORDER BY name", orgID)
	if err != nil {
		return nil, fmt.Errorf("list org projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list org projects: %w", err)
	}
	return out, nil
}

// UpdateProject updates name and description. Returns (nil, nil) if not found.
func (s *Store) UpdateProject(ctx context.Context, id uuid.UUID, name, description string) (*Project, error) {
	p, err := scanProject(s.pool.QueryRow(ctx,
		`UPDATE projects SET name = $2, description = $3 WHERE id = $1
		 RETURNING `+projectColumns,
		id, name, description))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes the project and, via cascade, its memberships and
// test assets. Returns false if the project did not exist.
func (s *Store) DeleteProject(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("delete project: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ── Memberships ───────────────────────────────────────────────────────────────

// ProjectMemberRole resolves the project role userID holds in projectID, or
// (nil, nil) for a non-member. This is the authz.MembershipResolver
// implementation: an unknown stored role value resolves to nil rather than
// erroring, so a bad row can never widen access.
func (s *Store) ProjectMemberRole(ctx context.Context, projectID, userID uuid.UUID) (*authz.ProjectRole, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		"SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2",
		projectID, userID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("project member role: %w", err)
	}
	role, ok := authz.ParseProjectRole(raw)
	if !ok {
		return nil, nil
	}
	return &role, nil
}

// UpsertProjectMember adds userID to the project or changes their role.
func (s *Store) UpsertProjectMember(ctx context.Context, projectID, userID uuid.UUID, role string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		projectID, userID, role)
	if err != nil {
		return fmt.Errorf("upsert project member: %w", err)
	}
	return nil
}

// RemoveProjectMember removes userID from the project.
func (s *Store) RemoveProjectMember(ctx context.Context, projectID, userID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM project_members WHERE project_id = $1 AND user_id = $2",
		projectID, userID); err != nil {
		return fmt.Errorf("remove project member: %w", err)
	}
	return nil
}

// ListProjectMembers returns all members of a project ordered by add time.
func (s *Store) ListProjectMembers(ctx context.Context, projectID uuid.UUID) ([]ProjectMemberRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.user_id, u.email, u.display_name, m.role, m.added_at
		   FROM project_members m
		   JOIN users u ON u.id = m.user_id
		  WHERE m.project_id = $1
		  ORDER BY m.added_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	var out []ProjectMemberRow
	for rows.Next() {
		var m ProjectMemberRow
		if err := rows.Scan(&m.UserID, &m.Email, &m.DisplayName, &m.Role, &m.AddedAt); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	return out, nil
}
