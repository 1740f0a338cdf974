// ABOUTME: The authorization decision engine: Can / Require / CanSync cascade.
// ABOUTME: Evaluation order is a hard invariant: global → org → project → ownership → deny.
package authz

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// MembershipResolver resolves the project role a user holds in a project.
// Implementations return (nil, nil) for a user who is simply not a member;
// errors are reserved for infrastructure failures and make the decision fail
// closed at the caller. Must be safe for concurrent use.
type MembershipResolver interface {
	ProjectMemberRole(ctx context.Context, projectID, userID uuid.UUID) (*ProjectRole, error)
}

// Error is the typed authorization failure raised by Require. It carries the
// denied permission for diagnostics; the user-facing message stays generic.
type Error struct {
	Permission Permission
}

func (e *Error) Error() string {
	return "you do not have permission to do this"
}

// Status is the transport status for an authorization denial.
func (e *Error) Status() int { return http.StatusForbidden }

// Engine evaluates authorization decisions. It holds no mutable state of its
// own: the role tables are process-lifetime constants and the only external
// dependency is the membership resolver.
type Engine struct {
	members MembershipResolver
}

// NewEngine creates an Engine backed by members.
func NewEngine(members MembershipResolver) *Engine {
	return &Engine{members: members}
}

// roleGrants is the role-only core of the cascade: the global check followed
// by the org check. Both Can and CanSync call this, so the two can never
// drift as the permission vocabulary evolves.
func roleGrants(p Permission, globalRoles []GlobalRole, orgRole *OrgRole) bool {
	for _, r := range globalRoles {
		if GlobalRoleGrants(r, p) {
			return true
		}
	}
	if orgRole != nil && OrgRoleGrants(*orgRole, p) {
		return true
	}
	return false
}

// Can reports whether pc is allowed to perform p. The cascade is evaluated
// in order with short-circuiting:
//
//  1. global roles — an allow here never touches the membership resolver
//  2. org role
//  3. project role, via one membership lookup (only when ProjectID is set)
//  4. ownership exception: the action is update, the caller owns the
//     resource, and the caller holds any project role at all
//  5. deny
//
// A resolver failure propagates as an error — never an implicit deny or
// allow. A normal deny is (false, nil).
func (e *Engine) Can(ctx context.Context, p Permission, pc PolicyContext) (bool, error) {
	if roleGrants(p, pc.GlobalRoles, pc.OrganizationRole) {
		return true, nil
	}
	if pc.ProjectID == nil {
		return false, nil
	}

	role, err := e.members.ProjectMemberRole(ctx, *pc.ProjectID, pc.UserID)
	if err != nil {
		return false, fmt.Errorf("resolve project role: %w", err)
	}
	if role != nil && ProjectRoleGrants(*role, p) {
		return true, nil
	}

	// Ownership exception: the creator of a resource may update it while
	// holding any project role, even one that does not otherwise grant the
	// update. Applies to update actions only — never create or delete.
	if p.Action() == ActionUpdate &&
		pc.ResourceOwnerID != nil && *pc.ResourceOwnerID == pc.UserID &&
		role != nil {
		return true, nil
	}

	return false, nil
}

// Require is the enforcement form of Can: nil on allow, *Error on deny.
// Resolver failures propagate unchanged so callers can distinguish "denied"
// from "could not determine".
func (e *Engine) Require(ctx context.Context, p Permission, pc PolicyContext) error {
	ok, err := e.Can(ctx, p, pc)
	if err != nil {
		return err
	}
	if !ok {
		return &Error{Permission: p}
	}
	return nil
}

// CanSync is the store-free variant for UI show/hide decisions: it runs only
// the global and org steps of the cascade. Its answer is not authoritative —
// a project-level grant (or the ownership exception) is invisible to it, so
// a false here does not mean the equivalent Can call would deny, and callers
// must never treat its result as a security boundary. The server re-checks
// with Can/Require on every mutating request.
func CanSync(p Permission, globalRoles []GlobalRole, orgRole *OrgRole) bool {
	return roleGrants(p, globalRoles, orgRole)
}

// CachingResolver memoizes membership lookups for the lifetime of one
// request, so a handler that evaluates several permissions against the same
// (project, user) pair performs a single store query. Safe for concurrent
// use; not for reuse across requests — membership changes would be invisible.
type CachingResolver struct {
	inner MembershipResolver

	mu    sync.Mutex
	cache map[memberKey]*ProjectRole
}

type memberKey struct {
	projectID uuid.UUID
	userID    uuid.UUID
}

// NewCachingResolver wraps inner with a per-request memo.
func NewCachingResolver(inner MembershipResolver) *CachingResolver {
	return &CachingResolver{inner: inner, cache: make(map[memberKey]*ProjectRole)}
}

// ProjectMemberRole returns the cached role for (projectID, userID) or
// delegates to the wrapped resolver. Errors are not cached.
func (c *CachingResolver) ProjectMemberRole(ctx context.Context, projectID, userID uuid.UUID) (*ProjectRole, error) {
	key := memberKey{projectID: projectID, userID: userID}

	c.mu.Lock()
	role, ok := c.cache[key]
	c.mu.Unlock()
	if ok {
		return role, nil
	}

	role, err := c.inner.ProjectMemberRole(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = role
	c.mu.Unlock()
	return role, nil
}
