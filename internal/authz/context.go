// ABOUTME: PolicyContext — the immutable caller description threaded through every decision.
// ABOUTME: Constructed only at well-defined call sites (route guard, resource scope resolvers).
package authz

import "github.com/google/uuid"

// PolicyContext describes the caller of a single authorization decision.
// Optional fields are pointers; OrganizationRole is meaningful only when
// OrganizationID is set, and ProjectID must be set for any project-scoped
// permission to be evaluated.
type PolicyContext struct {
	// UserID is the authenticated caller. Required.
	UserID uuid.UUID

	// GlobalRoles holds the caller's platform-wide roles. May be empty.
	GlobalRoles []GlobalRole

	// OrganizationID and OrganizationRole identify the caller's role within
	// the org the request is scoped to, when there is one.
	OrganizationID   *uuid.UUID
	OrganizationRole *OrgRole

	// ProjectID scopes the decision to a project. When nil the project step
	// of the cascade (and the ownership exception) is skipped entirely.
	ProjectID *uuid.UUID

	// ResourceOwnerID is the creator of the specific resource being acted
	// on, when known. Drives the ownership exception for update actions.
	ResourceOwnerID *uuid.UUID
}

// WithProject returns a copy of pc scoped to projectID.
func (pc PolicyContext) WithProject(projectID uuid.UUID) PolicyContext {
	pc.ProjectID = &projectID
	return pc
}

// WithResourceOwner returns a copy of pc carrying the resource owner.
func (pc PolicyContext) WithResourceOwner(ownerID uuid.UUID) PolicyContext {
	pc.ResourceOwnerID = &ownerID
	return pc
}
