// ABOUTME: Store methods for organization, membership, and invitation management.
// ABOUTME: GetOrgMemberRole feeds the route guard; it never errors for a non-member.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Organization is a tenant.
type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// OrgMemberRow is one row of an org member listing, joined with user info.
type OrgMemberRow struct {
	UserID      uuid.UUID
	Email       string
	DisplayName string
	Role        string
	JoinedAt    time.Time
}

// OrgInvitation is a pending or accepted invitation to join an org.
type OrgInvitation struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	Email      string
	Role       string
	Token      string
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AcceptedAt *time.Time
}

// CreateOrgWithOwner atomically creates a new org and adds ownerID as owner.
func (s *Store) CreateOrgWithOwner(ctx context.Context, name string, ownerID uuid.UUID) (*Organization, error) {
	var org Organization
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			"INSERT INTO organizations (name) VALUES ($1) RETURNING id, name, created_at", name,
		).Scan(&org.ID, &org.Name, &org.CreatedAt)
		if err != nil {
			return fmt.Errorf("create org: %w", err)
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO org_members (org_id, user_id, role) VALUES ($1, $2, 'owner')",
			org.ID, ownerID)
		if err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// GetOrgByID returns the org with the given ID, or (nil, nil) if not found.
func (s *Store) GetOrgByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var org Organization
	err := s.pool.QueryRow(ctx,
		"SELECT id, name, created_at FROM organizations WHERE id = $1", id,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get org by id: %w", err)
	}
	return &org, nil
}

// UpdateOrg updates the org name. Returns (nil, nil) if the org is not found.
func (s *Store) UpdateOrg(ctx context.Context, id uuid.UUID, name string) (*Organization, error) {
	var org Organization
	err := s.pool.QueryRow(ctx,
		"UPDATE organizations SET name = $2 WHERE id = $1 RETURNING id, name, created_at",
		id, name,
	).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update org: %w", err)
	}
	return &org, nil
}

// CreateOrgMember adds a user to an org with the given role.
func (s *Store) CreateOrgMember(ctx context.Context, orgID, userID uuid.UUID, role string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO org_members (org_id, user_id, role) VALUES ($1, $2, $3)",
		orgID, userID, role)
	if err != nil {
		return fmt.Errorf("create org member: %w", err)
	}
	return nil
}

// GetOrgMemberRole returns the role of userID in orgID, or (nil, nil) if the
// user is not a member. Errors mean the store itself failed — callers must
// not treat them as "not a member".
func (s *Store) GetOrgMemberRole(ctx context.Context, orgID, userID uuid.UUID) (*string, error) {
	var role string
	err := s.pool.QueryRow(ctx,
		"SELECT role FROM org_members WHERE org_id = $1 AND user_id = $2",
		orgID, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get org member role: %w", err)
	}
	return &role, nil
}

// ListOrgMembers returns all members of an org ordered by join time.
func (s *Store) ListOrgMembers(ctx context.Context, orgID uuid.UUID) ([]OrgMemberRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT m.user_id, u.email, u.display_name, m.role, m.joined_at
		   FROM org_members m
		   JOIN users u ON u.id = m.user_id
		  WHERE m.org_id = $1
		  ORDER BY m.joined_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list org members: %w", err)
	}
	defer rows.Close()

	var out []OrgMemberRow
	for rows.Next() {
		var m OrgMemberRow
		if err := rows.Scan(&m.UserID, &m.Email, &m.DisplayName, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan org member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list org members: %w", err)
	}
	return out, nil
}

// UpdateOrgMemberRole changes the role of userID in orgID.
func (s *Store) UpdateOrgMemberRole(ctx context.Context, orgID, userID uuid.UUID, role string) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE org_members SET role = $3 WHERE org_id = $1 AND user_id = $2",
		orgID, userID, role)
	if err != nil {
		return fmt.Errorf("update org member role: %w", err)
	}
	return nil
}

// RemoveOrgMember removes userID from orgID.
func (s *Store) RemoveOrgMember(ctx context.Context, orgID, userID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM org_members WHERE org_id = $1 AND user_id = $2", orgID, userID); err != nil {
		return fmt.Errorf("remove org member: %w", err)
	}
	return nil
}

// GetOrgOwnerCount returns the number of owners in the given org.
// Used to prevent removing or demoting the last owner.
func (s *Store) GetOrgOwnerCount(ctx context.Context, orgID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT count(*) FROM org_members WHERE org_id = $1 AND role = 'owner'", orgID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("get org owner count: %w", err)
	}
	return n, nil
}

const invitationColumns = "id, org_id, email, role, token, created_by, created_at, expires_at, accepted_at"

func scanInvitation(row pgx.Row) (*OrgInvitation, error) {
	var inv OrgInvitation
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Email, &inv.Role, &inv.Token,
		&inv.CreatedBy, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// CreateOrgInvitation inserts an invitation record and returns it.
func (s *Store) CreateOrgInvitation(ctx context.Context, orgID uuid.UUID, email, role, token string, createdBy uuid.UUID, expiresAt time.Time) (*OrgInvitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		`INSERT INTO org_invitations (org_id, email, role, token, created_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+invitationColumns,
		orgID, email, role, token, createdBy, expiresAt))
	if err != nil {
		return nil, fmt.Errorf("create org invitation: %w", err)
	}
	return inv, nil
}

// GetInvitationByToken returns the invitation for the given token, or
// (nil, nil) if not found. Callers check expiry and accepted_at.
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*OrgInvitation, error) {
	inv, err := scanInvitation(s.pool.QueryRow(ctx,
		"SELECT "+invitationColumns+" FROM org_invitations WHERE token = $1", token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invitation by token: %w", err)
	}
	return inv, nil
}

// AcceptOrgInvitation atomically creates an org_members row and marks the
// invitation accepted.
func (s *Store) AcceptOrgInvitation(ctx context.Context, orgID, userID uuid.UUID, role string, invitationID uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			"INSERT INTO org_members (org_id, user_id, role) VALUES ($1, $2, $3)",
			orgID, userID, role); err != nil {
			return fmt.Errorf("create org member: %w", err)
		}
		if _, err := tx.Exec(ctx,
			"UPDATE org_invitations SET accepted_at = now() WHERE id = $1", invitationID); err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}
		return nil
	})
}

// ListOrgInvitations returns all pending, unexpired invitations for an org.
func (s *Store) ListOrgInvitations(ctx context.Context, orgID uuid.UUID) ([]OrgInvitation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invitationColumns+`
		   FROM org_invitations
		  WHERE org_id = $1 AND accepted_at IS NULL AND expires_at > now()
		  ORDER BY created_at`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list org invitations: %w", err)
	}
	defer rows.Close()

	var out []OrgInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list org invitations: %w", err)
	}
	return out, nil
}

// CancelInvitation deletes an invitation by ID within an org.
func (s *Store) CancelInvitation(ctx context.Context, orgID, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM org_invitations WHERE org_id = $1 AND id = $2", orgID, id); err != nil {
		return fmt.Errorf("cancel invitation: %w", err)
	}
	return nil
}

// UserOrgRow is one org membership in a user's org listing.
type UserOrgRow struct {
	OrgID uuid.UUID
	Name  string
	Role  string
}

// ListUserOrgs returns every org the user belongs to with their role.
func (s *Store) ListUserOrgs(ctx context.Context, userID uuid.UUID) ([]UserOrgRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT o.id, o.name, m.role
		   FROM org_members m
		   JOIN organizations o ON o.id = m.org_id
		  WHERE m.user_id = $1
		  ORDER BY o.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user orgs: %w", err)
	}
	defer rows.Close()

	var out []UserOrgRow
	for rows.Next() {
		var row UserOrgRow
		if err := rows.Scan(&row.OrgID, &row.Name, &row.Role); err != nil {
			return nil, fmt.Errorf("scan user org: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user orgs: %w", err)
	}
	return out, nil
}
