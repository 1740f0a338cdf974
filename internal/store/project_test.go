// ABOUTME: Integration tests for store/project.go — project CRUD and membership roles.
// ABOUTME: Uses testutil.NewTestDB; each test runs in its own container (t.Parallel).
package store_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/testutil"
)

func TestProjectLifecycle(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, _ := s.CreateUser(ctx, "proj_owner@example.com", "Owner", "", 0)
	org, err := s.CreateOrgWithOwner(ctx, "ProjOrg", owner.ID)
	if err != nil {
		t.Fatalf("CreateOrgWithOwner: %v", err)
	}

	proj, err := s.CreateProject(ctx, org.ID, "Payments", "Payment flows", owner.ID)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if proj.Name != "Payments" || proj.OrgID != org.ID || proj.CreatedBy != owner.ID {
		t.Errorf("project = %+v", proj)
	}

	// The creator is seeded as project admin.
	role, err := s.ProjectMemberRole(ctx, proj.ID, owner.ID)
	if err != nil {
		t.Fatalf("ProjectMemberRole: %v", err)
	}
	if role == nil || *role != authz.ProjectAdmin {
		t.Errorf("creator role = %v, want admin", role)
	}

	updated, err := s.UpdateProject(ctx, proj.ID, "Payments v2", "New scope")
	if err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	if updated.Name != "Payments v2" {
		t.Errorf("updated.Name = %q", updated.Name)
	}

	list, err := s.ListOrgProjects(ctx, org.ID)
	if err != nil {
		t.Fatalf("ListOrgProjects: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListOrgProjects: got %d, want 1", len(list))
	}

	deleted, err := s.DeleteProject(ctx, proj.ID)
	if err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if !deleted {
		t.Error("DeleteProject should report true")
	}
	gone, err := s.GetProjectByID(ctx, proj.ID)
	if err != nil {
		t.Fatalf("GetProjectByID after delete: %v", err)
	}
	if gone != nil {
		t.Error("project should be gone after delete")
	}
}

func TestProjectMemberRole_NonMember(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, _ := s.CreateUser(ctx, "pm_owner@example.com", "Owner", "", 0)
	org, _ := s.CreateOrgWithOwner(ctx, "PMOrg", owner.ID)
	proj, err := s.CreateProject(ctx, org.ID, "Web", "", owner.ID)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	stranger, _ := s.CreateUser(ctx, "pm_stranger@example.com", "Stranger", "", 0)
	role, err := s.ProjectMemberRole(ctx, proj.ID, stranger.ID)
	if err != nil {
		t.Fatalf("ProjectMemberRole: %v", err)
	}
	if role != nil {
		t.Errorf("non-member role = %v, want nil", role)
	}

	// Unknown project behaves the same as no membership.
	role, err = s.ProjectMemberRole(ctx, uuid.New(), stranger.ID)
	if err != nil {
		t.Fatalf("ProjectMemberRole(missing project): %v", err)
	}
	if role != nil {
		t.Errorf("missing-project role = %v, want nil", role)
	}
}

func TestProjectMemberUpsert(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, _ := s.CreateUser(ctx, "up_owner@example.com", "Owner", "", 0)
	org, _ := s.CreateOrgWithOwner(ctx, "UpOrg", owner.ID)
	proj, err := s.CreateProject(ctx, org.ID, "Mobile", "", owner.ID)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	user, _ := s.CreateUser(ctx, "up_member@example.com", "Member", "", 0)

	if err := s.UpsertProjectMember(ctx, proj.ID, user.ID, "viewer"); err != nil {
		t.Fatalf("UpsertProjectMember: %v", err)
	}
	role, _ := s.ProjectMemberRole(ctx, proj.ID, user.ID)
	if role == nil || *role != authz.ProjectViewer {
		t.Errorf("role = %v, want viewer", role)
	}

	// Upsert promotes in place.
	if err := s.UpsertProjectMember(ctx, proj.ID, user.ID, "editor"); err != nil {
		t.Fatalf("UpsertProjectMember(promote): %v", err)
	}
	role, _ = s.ProjectMemberRole(ctx, proj.ID, user.ID)
	if role == nil || *role != authz.ProjectEditor {
		t.Errorf("role after promote = %v, want editor", role)
	}

	members, err := s.ListProjectMembers(ctx, proj.ID)
	if err != nil {
		t.Fatalf("ListProjectMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("ListProjectMembers: got %d, want 2 (creator + member)", len(members))
	}

	if err := s.RemoveProjectMember(ctx, proj.ID, user.ID); err != nil {
		t.Fatalf("RemoveProjectMember: %v", err)
	}
	role, _ = s.ProjectMemberRole(ctx, proj.ID, user.ID)
	if role != nil {
		t.Errorf("role after remove = %v, want nil", role)
	}
}
