// ABOUTME: Role enumerations and the three static role→permission tables.
// ABOUTME: Tables are built once at package init and never written again.
package authz

// GlobalRole is a platform-wide role, independent of any org or project.
type GlobalRole string

const (
	GlobalSuperAdmin GlobalRole = "super_admin" // full platform control
	GlobalSupport    GlobalRole = "support"     // read-only across all tenants
	GlobalAuditor    GlobalRole = "auditor"     // read-only across all tenants
)

// ParseGlobalRole maps a stored role string to a GlobalRole. Unknown strings
// return ("", false) — an unrecognised stored role must grant nothing.
func ParseGlobalRole(s string) (GlobalRole, bool) {
	switch r := GlobalRole(s); r {
	case GlobalSuperAdmin, GlobalSupport, GlobalAuditor:
		return r, true
	default:
		return "", false
	}
}

// OrgRole is a role scoped to exactly one organization.
type OrgRole string

const (
	OrgOwner   OrgRole = "owner"
	OrgAdmin   OrgRole = "admin"
	OrgMember  OrgRole = "member"
	OrgBilling OrgRole = "billing"
)

// ParseOrgRole maps a stored role string to an OrgRole.
func ParseOrgRole(s string) (OrgRole, bool) {
	switch r := OrgRole(s); r {
	case OrgOwner, OrgAdmin, OrgMember, OrgBilling:
		return r, true
	default:
		return "", false
	}
}

// ProjectRole is a role scoped to one project, strictly ordered
// viewer ⊂ editor ⊂ admin. The ordering is enforced by Set.Union in the
// table construction below, not by runtime comparisons.
type ProjectRole string

const (
	ProjectViewer ProjectRole = "viewer"
	ProjectEditor ProjectRole = "editor"
	ProjectAdmin  ProjectRole = "admin"
)

// ParseProjectRole maps a stored role string to a ProjectRole.
func ParseProjectRole(s string) (ProjectRole, bool) {
	switch r := ProjectRole(s); r {
	case ProjectViewer, ProjectEditor, ProjectAdmin:
		return r, true
	default:
		return "", false
	}
}

// ── Global table ──────────────────────────────────────────────────────────────

var globalRolePermissions = map[GlobalRole]Set{
	GlobalSuperAdmin: NewSet(All...),
	GlobalSupport:    NewSet(ReadOnly...),
	GlobalAuditor:    NewSet(ReadOnly...),
}

// ── Org table ─────────────────────────────────────────────────────────────────

// Org owner holds every permission except user:create, which stays
// exclusively global. The exclusion is structural, not advisory: owner's set
// is derived from the registry with UserCreate removed.
var orgRolePermissions = map[OrgRole]Set{
	OrgOwner: allExcept(UserCreate),
	OrgAdmin: NewSet(ReadOnly...).Union(NewSet(
		ProjectCreate, ProjectUpdate, ProjectDelete,
		TestPlanCreate, TestPlanUpdate, TestPlanDelete,
		TestCaseCreate, TestCaseUpdate, TestCaseDelete,
		TestRunCreate, TestRunUpdate, TestRunDelete,
		BugCreate, BugUpdate, BugDelete,
		ReportCreate, ReportDelete,
		OrgMemberUpdate, OrgMemberDelete,
		APIKeyCreate, APIKeyDelete,
	)),
	OrgMember:  NewSet(ReadOnly...).Union(NewSet(APIKeyCreate)),
	OrgBilling: NewSet(ReportList, ReportView),
}

// ── Project table ─────────────────────────────────────────────────────────────

// Built by explicit union: editor = viewer ∪ creates/updates,
// admin = editor ∪ deletes (plus project settings). Go initialises these in
// dependency order, so the chain below is safe at package init.
var (
	projectViewerPermissions = NewSet(
		ProjectView,
		TestPlanList, TestPlanView,
		TestCaseList, TestCaseView,
		TestRunList, TestRunView,
		BugList, BugView,
		ReportList, ReportView,
	)

	projectEditorPermissions = projectViewerPermissions.Union(NewSet(
		TestPlanCreate, TestPlanUpdate,
		TestCaseCreate, TestCaseUpdate,
		TestRunCreate, TestRunUpdate,
		BugCreate, BugUpdate,
		ReportCreate,
	))

	projectAdminPermissions = projectEditorPermissions.Union(NewSet(
		ProjectUpdate, ProjectDelete,
		TestPlanDelete,
		TestCaseDelete,
		TestRunDelete,
		BugDelete,
		ReportDelete,
	))
)

var projectRolePermissions = map[ProjectRole]Set{
	ProjectViewer: projectViewerPermissions,
	ProjectEditor: projectEditorPermissions,
	ProjectAdmin:  projectAdminPermissions,
}

// GlobalRoleGrants reports whether role grants p per the global table.
func GlobalRoleGrants(role GlobalRole, p Permission) bool {
	return globalRolePermissions[role].Has(p)
}

// OrgRoleGrants reports whether role grants p per the org table.
func OrgRoleGrants(role OrgRole, p Permission) bool {
	return orgRolePermissions[role].Has(p)
}

// ProjectRoleGrants reports whether role grants p per the project table.
func ProjectRoleGrants(role ProjectRole, p Permission) bool {
	return projectRolePermissions[role].Has(p)
}
