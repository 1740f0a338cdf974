// ABOUTME: HTTP handlers for test plans and test cases within a project.
// ABOUTME: Plans and cases are list/view/create here; runs reference them.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/store"
)

type planResponseBody struct {
	PlanID      string `json:"plan_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

func planResponse(p *store.TestPlan) planResponseBody {
	return planResponseBody{
		PlanID:      p.ID.String(),
		Title:       p.Title,
		Description: p.Description,
		CreatedBy:   p.CreatedBy.String(),
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

type caseResponseBody struct {
	CaseID    string `json:"case_id"`
	PlanID    string `json:"plan_id,omitempty"`
	Title     string `json:"title"`
	Steps     string `json:"steps"`
	Expected  string `json:"expected"`
	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
}

func caseResponse(c *store.TestCase) caseResponseBody {
	out := caseResponseBody{
		CaseID:    c.ID.String(),
		Title:     c.Title,
		Steps:     c.Steps,
		Expected:  c.Expected,
		CreatedBy: c.CreatedBy.String(),
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
	if c.PlanID != nil {
		out.PlanID = c.PlanID.String()
	}
	return out
}

// listTestPlansHandler handles GET .../test-plans.
func (srv *Server) listTestPlansHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	plans, err := srv.store.ListTestPlans(r.Context(), *pc.ProjectID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list test plans", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]planResponseBody, 0, len(plans))
	for i := range plans {
		out = append(out, planResponse(&plans[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"test_plans": out})
}

type createPlanBody struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// createTestPlanHandler handles POST .../test-plans.
func (srv *Server) createTestPlanHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var req createPlanBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	plan, err := srv.store.CreateTestPlan(r.Context(), *pc.ProjectID, req.Title, req.Description, pc.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create test plan", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, planResponse(plan))
}

// planInScope resolves {plan_id} within the project in scope. Unknown plans
// and plans of other projects are 404.
func (srv *Server) planInScope(w http.ResponseWriter, r *http.Request) (*store.TestPlan, bool) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	planID, err := uuid.Parse(chi.URLParam(r, "plan_id"))
	if err != nil {
		http.Error(w, "invalid plan_id", http.StatusBadRequest)
		return nil, false
	}

	plan, err := srv.store.GetTestPlan(r.Context(), planID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get test plan", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	if plan == nil || plan.ProjectID != *pc.ProjectID {
		http.Error(w, "not found", http.StatusNotFound)
		return nil, false
	}
	return plan, true
}

// getTestPlanHandler handles GET .../test-plans/{plan_id}.
func (srv *Server) getTestPlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, ok := srv.planInScope(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, planResponse(plan))
}

// listTestCasesHandler handles GET .../test-plans/{plan_id}/test-cases.
func (srv *Server) listTestCasesHandler(w http.ResponseWriter, r *http.Request) {
	plan, ok := srv.planInScope(w, r)
	if !ok {
		return
	}

	cases, err := srv.store.ListTestCases(r.Context(), plan.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list test cases", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]caseResponseBody, 0, len(cases))
	for i := range cases {
		out = append(out, caseResponse(&cases[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"test_cases": out})
}

type createCaseBody struct {
	Title    string `json:"title"`
	Steps    string `json:"steps"`
	Expected string `json:"expected"`
	PlanID   string `json:"plan_id,omitempty"`
}

// createTestCaseHandler handles POST .../test-cases.
func (srv *Server) createTestCaseHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var req createCaseBody
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
		plan, err := srv.store.GetTestPlan(r.Context(), id)
		if err != nil {
			slog.ErrorContext(r.Context(), "create case: get plan", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if plan == nil || plan.ProjectID != *pc.ProjectID {
			http.Error(w, "plan not found", http.StatusNotFound)
			return
		}
		planID = &id
	}

	tc, err := srv.store.CreateTestCase(r.Context(), *pc.ProjectID, planID, req.Title, req.Steps, req.Expected, pc.UserID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create test case", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, caseResponse(tc))
}

// getTestCaseHandler handles GET .../test-cases/{case_id}.
func (srv *Server) getTestCaseHandler(w http.ResponseWriter, r *http.Request) {
	pc, ok := policyFrom(r.Context())
	if !ok || pc.ProjectID == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	caseID, err := uuid.Parse(chi.URLParam(r, "case_id"))
	if err != nil {
		http.Error(w, "invalid case_id", http.StatusBadRequest)
		return
	}

	tc, err := srv.store.GetTestCase(r.Context(), caseID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get test case", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if tc == nil || tc.ProjectID != *pc.ProjectID {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, caseResponse(tc))
}
