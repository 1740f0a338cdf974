// ABOUTME: HTTP handlers for bugs: list, create, get, update, delete.
// ABOUTME: Bug-level routes resolve the bug before deciding access — 404 beats 403.
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

var validBugSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

var validBugStatuses = map[string]bool{
	"open":        true,
	"in_progress": true,
	"resolved":    true,
	"closed":      true,
}

type bugResponseBody struct {
	BugID     string `json:"bug_id"`
	RunID     string `json:"run_id,omitempty"`
	Title     string `json:"title"`
	Severity  string `json:"severity"`
	Status    string `json:"status"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func bugResponse(b *store.Bug) bugResponseBody {
	out := bugResponseBody{
		BugID:     b.ID.String(),
		Title:     b.Title,
		Severity:  b.Severity,
		Status:    b.Status,
		CreatedBy: b.CreatedBy.String(),
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
	if b.RunID != nil {
		out.RunID = b.RunID.String()
	}
	return out
}

// bugInScope resolves {bug_id} within the project in scope and evaluates p
// with the bug's reporter attached for the ownership carve-out.
func (srv *Server) bugInScope(w http.ResponseWriter, r *http.Request, p authz.Permission) (*store.Bug, bool) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	bugID, err := uuid.Parse(chi.URLParam(r, "bug_id"))
	if err != nil {
		http.Error(w, "invalid bug_id", http.StatusBadRequest)
		return nil, false
	}

	bug, err := srv.store.GetBug(r.Context(), bugID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get bug", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if bug == nil || bug.ProjectID != *pc.ProjectID {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}

	if err := srv.require(w, r, p, pc.WithResourceOwner(bug.CreatedBy)); err != nil {
		return nil, false
	}
	return bug, true
}

// listBugsHandler handles GET .../bugs.
func (srv *Server) listBugsHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	bugs, err := srv.store.ListBugs(r.Context(), *pc.ProjectID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list bugs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]bugResponseBody, 0, len(bugs))
	for i := range bugs {
		out = append(out, bugResponse(&bugs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bugs": out})
}

type createBugBody struct {
	Title    string `json:"title"`
	Severity string `json:"severity"`
	RunID    string `json:"run_id,omitempty"`
}

// createBugHandler handles POST .../bugs.
func (srv *Server) createBugHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var req createBugBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}
	if !validBugSeverities[req.Severity] {
		http.Error(w, "invalid severity", http.StatusBadRequest)
		return
	}

	var runID *uuid.UUID
	if req.RunID != "" {
		id, err := uuid.Parse(req.RunID)
		if err != nil {
			http.Error(w, "invalid run_id", http.StatusBadRequest)
			return
		}
		run, err := srv.store.GetTestRun(r.Context(), id)
		if err != nil {
			slog.ErrorContext(r.Context(), "create bug: get run", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if run == nil || run.ProjectID != *pc.ProjectID {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		runID = &id
	}

	bug, err := srv.store.CreateBug(r.Context(), *pc.ProjectID, runID, req.Title, req.Severity, pc.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create bug", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, bugResponse(bug))
}

// getBugHandler handles GET .../bugs/{bug_id}.
func (srv *Server) getBugHandler(w http.ResponseWriter, r *http.Request) {
	bug, ok := srv.bugInScope(w, r, authz.BugView)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bugResponse(bug))
}

type updateBugBody struct {
	Title    string `json:"title"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
}

// updateBugHandler handles PATCH .../bugs/{bug_id}.
// The reporter may update their own bug with any project role; deleting it
// still requires a granted bug:delete.
func (srv *Server) updateBugHandler(w http.ResponseWriter, r *http.Request) {
	bug, ok := srv.bugInScope(w, r, authz.BugUpdate)
	if !ok {
		return
	}

	var req updateBugBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		req.Title = bug.Title
	}
	if req.Severity == "" {
		req.Severity = bug.Severity
	} else if !validBugSeverities[req.Severity] {
		http.Error(w, "invalid severity", http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		req.Status = bug.Status
	} else if !validBugStatuses[req.Status] {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	updated, err := srv.store.UpdateBug(r.Context(), bug.ID, req.Title, req.Severity, req.Status)
	if err != nil {
		slog.ErrorContext(r.Context(), "update bug", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if updated == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, bugResponse(updated))
}

// deleteBugHandler handles DELETE .../bugs/{bug_id}.
func (srv *Server) deleteBugHandler(w http.ResponseWriter, r *http.Request) {
	bug, ok := srv.bugInScope(w, r, authz.BugDelete)
	if !ok {
		return
	}

	deleted, err := srv.store.DeleteBug(r.Context(), bug.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete bug", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
