// ABOUTME: Route guards that build the PolicyContext and enforce permissions.
// ABOUTME: Org policy from {org_id}, project scope from {project_id}; 404 before 403.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
)

// orgRoleRank orders org roles for API key capping. Billing ranks lowest:
// a billing-scoped key must never widen to member access.
var orgRoleRank = map[authz.OrgRole]int{
	authz.OrgBilling: 1,
	authz.OrgMember:  2,
	authz.OrgAdmin:   3,
	authz.OrgOwner:   4,
}

// withOrgPolicy returns a middleware that resolves the org from {org_id} and
// builds the caller's PolicyContext. Non-members pass through with no org
// role — the decision engine, not the router, decides whether their global
// roles suffice. A missing org is 404 regardless of the caller's permissions.
//
// Must run after RequireAuthenticated.
func (srv *Server) withOrgPolicy() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
			if err != nil {
				http.Error(w, "invalid org_id", http.StatusBadRequest)
				return
			}

			org, err := srv.store.GetOrgByID(r.Context(), orgID)
			if err != nil {
				slog.ErrorContext(r.Context(), "org policy: get org", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if org == nil {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}

			roleStr, err := srv.store.GetOrgMemberRole(r.Context(), orgID, userID)
			if err != nil {
				slog.ErrorContext(r.Context(), "org policy: get member role", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			var orgRole *authz.OrgRole
			if roleStr != nil {
				if role, ok := authz.ParseOrgRole(*roleStr); ok {
					orgRole = &role
				}
			}

			// API key requests: effective org role is capped to the key's role.
			if keyRoleStr, ok := r.Context().Value(ctxAPIKeyRole).(string); ok && keyRoleStr != "" {
				if keyRole, ok := authz.ParseOrgRole(keyRoleStr); ok {
					if orgRole == nil || orgRoleRank[keyRole] < orgRoleRank[*orgRole] {
						orgRole = &keyRole
					}
				}
			}

			globalRoles, _ := r.Context().Value(ctxGlobalRoles).([]authz.GlobalRole)

			pc := authz.PolicyContext{
				UserID:           userID,
				GlobalRoles:      globalRoles,
				OrganizationID:   &orgID,
				OrganizationRole: orgRole,
			}

			ctx := context.WithValue(r.Context(), ctxOrgID, orgID)
			ctx = context.WithValue(ctx, ctxPolicy, pc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// withProjectScope returns a middleware that resolves {project_id}, verifies
// the project belongs to the org in scope, and extends the PolicyContext with
// the project ID. Unknown projects (and projects of other orgs) are 404 —
// existence is never leaked before access is decided.
//
// Must run after withOrgPolicy.
func (srv *Server) withProjectScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
			if !ok {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
			if err != nil {
				http.Error(w, "invalid project_id", http.StatusBadRequest)
				return
			}

			project, err := srv.store.GetProjectByID(r.Context(), projectID)
			if err != nil {
				slog.ErrorContext(r.Context(), "project scope: get project", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if project == nil || project.OrgID != orgID {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}

			pc, ok := r.Context().Value(ctxPolicy).(authz.PolicyContext)
			if !ok {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}

			// A route-level permission gate and an in-handler ownership check
			// both resolve project membership; memoize it for this request.
			engine := authz.NewEngine(authz.NewCachingResolver(srv.store))

			ctx := context.WithValue(r.Context(), ctxPolicy, pc.WithProject(projectID))
			ctx = context.WithValue(ctx, ctxEngine, engine)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requirePermission returns a middleware that evaluates p against the
// PolicyContext built by the upstream guards. Denials are 403; resolver
// failures are 500 — infrastructure errors never grant access.
func (srv *Server) requirePermission(p authz.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pc, ok := r.Context().Value(ctxPolicy).(authz.PolicyContext)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := srv.require(w, r, p, pc); err != nil {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// require evaluates p for pc and writes the error response on denial or
// failure. Returns nil when the request may proceed.
func (srv *Server) require(w http.ResponseWriter, r *http.Request, p authz.Permission, pc authz.PolicyContext) error {
	engine := srv.engine
	if e, ok := r.Context().Value(ctxEngine).(*authz.Engine); ok {
		engine = e
	}
	err := engine.Require(r.Context(), p, pc)
	if err == nil {
		return nil
	}
	var denied *authz.Error
	if errors.As(err, &denied) {
		writeJSON(w, denied.Status(), map[string]string{"error": denied.Error()})
		return err
	}
	slog.ErrorContext(r.Context(), "permission check", "permission", string(p), "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
	return err
}

// policyFrom returns the PolicyContext the guards placed in ctx. The boolean
// is false if the guards did not run (a routing bug, not a user error).
func policyFrom(ctx context.Context) (authz.PolicyContext, bool) {
	pc, ok := ctx.Value(ctxPolicy).(authz.PolicyContext)
	return pc, ok
}

