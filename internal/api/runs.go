// ABOUTME: HTTP handlers for test runs: filtered listing, create, get, update, delete.
// ABOUTME: Run-level routes resolve the run before deciding access — 404 beats 403.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/store"
)

var validRunStatuses = map[string]bool{
	"open":        true,
	"in_progress": true,
	"completed":   true,
	"aborted":     true,
}

type runResponseBody struct {
	RunID     string `json:"run_id"`
	PlanID    string `json:"plan_id,omitempty"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func runResponse(run *store.TestRun) runResponseBody {
	out := runResponseBody{
		RunID:     run.ID.String(),
		Title:     run.Title,
		Status:    run.Status,
		CreatedBy: run.CreatedBy.String(),
		CreatedAt: run.CreatedAt.Format(time.RFC3339),
		UpdatedAt: run.UpdatedAt.Format(time.RFC3339),
	}
	if run.PlanID != nil {
		out.PlanID = run.PlanID.String()
	}
	return out
}

// runInScope resolves {run_id} within the project in scope and evaluates p
// with the run's creator attached for the ownership carve-out. Runs outside
// the project (or unknown IDs) are 404 — never 403, which would leak
// existence. Returns (nil, false) after writing the error response.
func (srv *Server) runInScope(w http.ResponseWriter, r *http.Request, p authz.Permission) (*store.TestRun, bool) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	runID, err := uuid.Parse(chi.URLParam(r, "run_id"))
	if err != nil {
		http.Error(w, "invalid run_id", http.StatusBadRequest)
		return nil, false
	}

	run, err := srv.store.GetTestRun(r.Context(), runID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get test run", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if run == nil || run.ProjectID != *pc.ProjectID {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}

	if err := srv.require(w, r, p, pc.WithResourceOwner(run.CreatedBy)); err != nil {
		return nil, false
	}
	return run, true
}

// listTestRunsHandler handles GET .../test-runs.
// Supports ?status=, ?created_by=, ?limit=, ?offset= filters.
func (srv *Server) listTestRunsHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var filter store.RunFilter
	q := r.URL.Query()
	if status := q.Get("status"); status != "" {
		if !validRunStatuses[status] {
			http.Error(w, "invalid status filter", http.StatusBadRequest)
			return
		}
		filter.Status = status
	}
	if creator := q.Get("created_by"); creator != "" {
		id, err := uuid.Parse(creator)
		if err != nil {
			http.Error(w, "invalid created_by filter", http.StatusBadRequest)
			return
		}
		filter.CreatedBy = &id
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.ParseUint(limitStr, 10, 32)
		if err != nil || limit == 0 || limit > 500 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		offset, err := strconv.ParseUint(offsetStr, 10, 32)
		if err != nil {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		filter.Offset = offset
	}

	runs, err := srv.store.ListTestRuns(r.Context(), *pc.ProjectID, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "list test runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]runResponseBody, 0, len(runs))
	for i := range runs {
		out = append(out, runResponse(&runs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"test_runs": out})
}

type createRunBody struct {
	Title  string `json:"title"`
	PlanID string `json:"plan_id,omitempty"`
}

// createTestRunHandler handles POST .../test-runs.
func (srv *Server) createTestRunHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var req createRunBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	var planID *uuid.UUID
	if req.PlanID != "" {
		id, err := uuid.Parse(req.PlanID)
		if err != nil {
			http.Error(w, "invalid plan_id", http.StatusBadRequest)
			return
		}
		// The plan must live in the same project as the run.
		plan, err := srv.store.GetTestPlan(r.Context(), id)
		if err != nil {
			slog.ErrorContext(r.Context(), "create run: get plan", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if plan == nil || plan.ProjectID != *pc.ProjectID {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		planID = &id
	}

	run, err := srv.store.CreateTestRun(r.Context(), *pc.ProjectID, planID, req.Title, pc.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create test run", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, runResponse(run))
}

// getTestRunHandler handles GET .../test-runs/{run_id}.
func (srv *Server) getTestRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := srv.runInScope(w, r, authz.TestRunView)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, runResponse(run))
}

type updateRunBody struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

// updateTestRunHandler handles PATCH .../test-runs/{run_id}.
// A run's creator may update it with any project role — this is the one
// place ownership widens access, and it never extends to delete.
func (srv *Server) updateTestRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := srv.runInScope(w, r, authz.TestRunUpdate)
	if !ok {
		return
	}

	var req updateRunBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		req.Title = run.Title
	}
	if req.Status == "" {
		req.Status = run.Status
	} else if !validRunStatuses[req.Status] {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	updated, err := srv.store.UpdateTestRun(r.Context(), run.ID, req.Title, req.Status)
	if err != nil {
		slog.ErrorContext(r.Context(), "update test run", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if updated == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, runResponse(updated))
}

// deleteTestRunHandler handles DELETE .../test-runs/{run_id}.
func (srv *Server) deleteTestRunHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := srv.runInScope(w, r, authz.TestRunDelete)
	if !ok {
		return
	}

	deleted, err := srv.store.DeleteTestRun(r.Context(), run.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete test run", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
