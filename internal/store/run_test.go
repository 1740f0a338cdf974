// ABOUTME: Integration tests for store/run.go — test run CRUD and list filters.
// ABOUTME: Uses testutil.NewTestDB; each test runs in its own container (t.Parallel).
package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/store"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/testutil"
)

func TestTestRunLifecycle(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, _ := s.CreateUser(ctx, "run_owner@example.com", "Owner", "", 0)
	org, _ := s.CreateOrgWithOwner(ctx, "RunOrg", owner.ID)
	proj, err := s.CreateProject(ctx, org.ID, "Checkout", "", owner.ID)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	run, err := s.CreateTestRun(ctx, proj.ID, nil, "Release 1.4 regression", owner.ID)
	if err != nil {
		t.Fatalf("CreateTestRun: %v", err)
	}
	if run.Status != "open" {
		t.Errorf("new run status = %q, want open", run.Status)
	}
	if run.PlanID != nil {
		t.Errorf("run.PlanID = %v, want nil", run.PlanID)
	}

	updated, err := s.UpdateTestRun(ctx, run.ID, "Release 1.4 regression", "in_progress")
	if err != nil {
		t.Fatalf("UpdateTestRun: %v", err)
	}
	if updated.Status != "in_progress" {
		t.Errorf("updated status = %q", updated.Status)
	}

	got, err := s.GetTestRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetTestRun: %v", err)
	}
	if got == nil || got.Status != "in_progress" {
		t.Errorf("GetTestRun = %+v", got)
	}

	deleted, err := s.DeleteTestRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("DeleteTestRun: %v", err)
	}
	if !deleted {
		t.Error("DeleteTestRun should report true")
	}
	if gone, _ := s.GetTestRun(ctx, run.ID); gone != nil {
		t.Error("run should be gone after delete")
	}
}

func TestListTestRuns_Filters(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, _ := s.CreateUser(ctx, "filt_owner@example.com", "Owner", "", 0)
	other, _ := s.CreateUser(ctx, "filt_other@example.com", "Other", "", 0)
	org, _ := s.CreateOrgWithOwner(ctx, "FiltOrg", owner.ID)
	proj, err := s.CreateProject(ctx, org.ID, "Filters", "", owner.ID)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	r1, _ := s.CreateTestRun(ctx, proj.ID, nil, "Run one", owner.ID)
	r2, _ := s.CreateTestRun(ctx, proj.ID, nil, "Run two", other.ID)
	if _, err := s.UpdateTestRun(ctx, r2.ID, "Run two", "completed"); err != nil {
		t.Fatalf("UpdateTestRun: %v", err)
	}

	all, err := s.ListTestRuns(ctx, proj.ID, store.RunFilter{})
	if err != nil {
		t.Fatalf("ListTestRuns(all): %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all runs: got %d, want 2", len(all))
	}

	open, err := s.ListTestRuns(ctx, proj.ID, store.RunFilter{Status: "open"})
	if err != nil {
		t.Fatalf("ListTestRuns(open): %v", err)
	}
	if len(open) != 1 || open[0].ID != r1.ID {
		t.Errorf("open runs = %+v, want only run one", open)
	}

	byOther, err := s.ListTestRuns(ctx, proj.ID, store.RunFilter{CreatedBy: &other.ID})
	if err != nil {
		t.Fatalf("ListTestRuns(created_by): %v", err)
	}
	if len(byOther) != 1 || byOther[0].ID != r2.ID {
		t.Errorf("runs by other = %+v, want only run two", byOther)
	}

	limited, err := s.ListTestRuns(ctx, proj.ID, store.RunFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListTestRuns(limit/offset): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limited runs: got %d, want 1", len(limited))
	}

	// Filters never cross project boundaries.
	otherProj, _ := s.CreateProject(ctx, org.ID, "Other", "", owner.ID)
	none, err := s.ListTestRuns(ctx, otherProj.ID, store.RunFilter{})
	if err != nil {
		t.Fatalf("ListTestRuns(other project): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("other project runs: got %d, want 0", len(none))
	}
}

func TestCreateTestRun_WithPlan(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, _ := s.CreateUser(ctx, "plan_owner@example.com", "Owner", "", 0)
	org, _ := s.CreateOrgWithOwner(ctx, "PlanOrg", owner.ID)
	proj, _ := s.CreateProject(ctx, org.ID, "Planned", "", owner.ID)
	plan, err := s.CreateTestPlan(ctx, proj.ID, "Smoke plan", "", owner.ID)
	if err != nil {
		t.Fatalf("CreateTestPlan: %v", err)
	}

	run, err := s.CreateTestRun(ctx, proj.ID, &plan.ID, "Planned run", owner.ID)
	if err != nil {
		t.Fatalf("CreateTestRun: %v", err)
	}
	if run.PlanID == nil || *run.PlanID != plan.ID {
		t.Errorf("run.PlanID = %v, want %v", run.PlanID, plan.ID)
	}

	// Dangling plan reference is rejected by the FK.
	bad := uuid.New()
	if _, err := s.CreateTestRun(ctx, proj.ID, &bad, "Bad run", owner.ID); err == nil {
		t.Error("CreateTestRun with unknown plan should fail")
	}
}
