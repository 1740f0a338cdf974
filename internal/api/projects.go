// ABOUTME: HTTP handlers for project CRUD and project member management.
// ABOUTME: Update and delete fetch the project first so ownership feeds the decision.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/store"
)

type projectResponseBody struct {
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

func projectResponse(p *store.Project) projectResponseBody {
	return projectResponseBody{
		ProjectID:   p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		CreatedBy:   p.CreatedBy.String(),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

// listProjectsHandler handles GET /api/v1/orgs/{org_id}/projects.
func (srv *Server) listProjectsHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	projects, err := srv.store.ListOrgProjects(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list projects", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]projectResponseBody, 0, len(projects))
	for i := range projects {
		out = append(out, projectResponse(&projects[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

type createProjectBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// createProjectHandler handles POST /api/v1/orgs/{org_id}/projects.
// The creator becomes the project's first admin.
func (srv *Server) createProjectHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	userID, _ := r.Context().Value(ctxUserID).(uuid.UUID)

	var req createProjectBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	project, err := srv.store.CreateProject(r.Context(), orgID, req.Name, req.Description, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create project", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, projectResponse(project))
}

// getProjectHandler handles GET /api/v1/orgs/{org_id}/projects/{project_id}.
func (srv *Server) getProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := srv.projectInScope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, projectResponse(project))
}

type updateProjectBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// updateProjectHandler handles PATCH /api/v1/orgs/{org_id}/projects/{project_id}.
// The project creator may rename their own project even as a plain member —
// the ownership carve-out applies to update, and only update.
func (srv *Server) updateProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := srv.projectInScope(w, r)
	if !ok {
		return
	}
	pc, ok := policyFrom(r.Context())
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := srv.require(w, r, authz.ProjectUpdate, pc.WithResourceOwner(project.CreatedBy)); err != nil {
		return
	}

	var req updateProjectBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = project.Name
	}

	updated, err := srv.store.UpdateProject(r.Context(), project.ID, req.Name, req.Description)
	if err != nil {
		slog.ErrorContext(r.Context(), "update project", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if updated == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse(updated))
}

// deleteProjectHandler handles DELETE /api/v1/orgs/{org_id}/projects/{project_id}.
// Delete never honours ownership — only a granted project:delete passes.
func (srv *Server) deleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	project, ok := srv.projectInScope(w, r)
	if !ok {
		return
	}
	pc, ok := policyFrom(r.Context())
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := srv.require(w, r, authz.ProjectDelete, pc.WithResourceOwner(project.CreatedBy)); err != nil {
		return
	}

	deleted, err := srv.store.DeleteProject(r.Context(), project.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete project", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// projectInScope re-fetches the project resolved by withProjectScope. The
// guard already 404'd unknown projects; this only recovers the row for
// handlers that need its fields.
func (srv *Server) projectInScope(w http.ResponseWriter, r *http.Request) (*store.Project, bool) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	project, err := srv.store.GetProjectByID(r.Context(), *pc.ProjectID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get project", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if project == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	return project, true
}

// ── Project members ───────────────────────────────────────────────────────────

// listProjectMembersHandler handles GET .../projects/{project_id}/members.
func (srv *Server) listProjectMembersHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	rows, err := srv.store.ListProjectMembers(r.Context(), *pc.ProjectID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list project members", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]memberEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, memberEntry{
			UserID:      m.UserID.String(),
			Email:       m.Email,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			JoinedAt:    m.AddedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

type upsertProjectMemberBody struct {
	Role string `json:"role"`
}

// upsertProjectMemberHandler handles PUT .../projects/{project_id}/members/{user_id}.
// The target must already be a member of the org; project roles never reach
// outside the tenant.
func (srv *Server) upsertProjectMemberHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil || pc.OrganizationID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	var req upsertProjectMemberBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, ok := authz.ParseProjectRole(req.Role); !ok {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	orgRole, err := srv.store.GetOrgMemberRole(r.Context(), *pc.OrganizationID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "upsert project member: org check", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if orgRole == nil {
		http.Error(w, "user is not a member of this organization", http.StatusUnprocessableEntity)
		return
	}

	if err := srv.store.UpsertProjectMember(r.Context(), *pc.ProjectID, targetID, req.Role); err != nil {
		slog.ErrorContext(r.Context(), "upsert project member", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": targetID.String(), "role": req.Role})
}

// removeProjectMemberHandler handles DELETE .../projects/{project_id}/members/{user_id}.
func (srv *Server) removeProjectMemberHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	if err := srv.store.RemoveProjectMember(r.Context(), *pc.ProjectID, targetID); err != nil {
		slog.ErrorContext(r.Context(), "remove project member", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
