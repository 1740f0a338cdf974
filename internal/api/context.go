// ABOUTME: Request context key types and constants for the api package.
// ABOUTME: Used by middleware to inject auth state and by handlers to read it.
package api

type contextKey int

const (
	ctxUserID      contextKey = iota // uuid.UUID — authenticated user
	ctxGlobalRoles                   // []authz.GlobalRole — from JWT claims
	ctxAPIKeyRole                    // string — role carried by the API key (caps org role)
	ctxOrgID                         // uuid.UUID — org from URL path param
	ctxPolicy                        // authz.PolicyContext — built by the permission guard
	ctxEngine                        // *authz.Engine — per-request engine with memoized memberships
)
