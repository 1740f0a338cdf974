// ABOUTME: Permission identifiers ("<resource>:<action>") and the closed registry.
// ABOUTME: The identifier set is fixed at compile time — no permission is ever built dynamically.
package authz

import "strings"

// Resource is the left half of a permission identifier.
type Resource string

// Action is the right half of a permission identifier.
type Action string

// Actions. The ownership exception in the decision engine keys off
// ActionUpdate specifically — see Engine.Can.
const (
	ActionList   Action = "list"
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Permission is an opaque "<resource>:<action>" identifier. The string form
// is stable: it appears in logs and error messages and must not change
// without a migration plan.
type Permission string

// Split returns the typed (resource, action) pair of p. The action of a
// malformed permission is "" and will never structurally match any known
// action; callers do not need a separate validity check.
func (p Permission) Split() (Resource, Action) {
	res, act, ok := strings.Cut(string(p), ":")
	if !ok {
		return Resource(res), ""
	}
	return Resource(res), Action(act)
}

// Action returns the action half of p.
func (p Permission) Action() Action {
	_, act := p.Split()
	return act
}

// The full permission vocabulary. Grouped by resource. UserCreate is
// platform-only: it is excluded from every org role, including owner.
const (
	ProjectList   Permission = "project:list"
	ProjectView   Permission = "project:view"
	ProjectCreate Permission = "project:create"
	ProjectUpdate Permission = "project:update"
	ProjectDelete Permission = "project:delete"

	TestPlanList   Permission = "test-plan:list"
	TestPlanView   Permission = "test-plan:view"
	TestPlanCreate Permission = "test-plan:create"
	TestPlanUpdate Permission = "test-plan:update"
	TestPlanDelete Permission = "test-plan:delete"

	TestCaseList   Permission = "test-case:list"
	TestCaseView   Permission = "test-case:view"
	TestCaseCreate Permission = "test-case:create"
	TestCaseUpdate Permission = "test-case:update"
	TestCaseDelete Permission = "test-case:delete"

	TestRunList   Permission = "test-run:list"
	TestRunView   Permission = "test-run:view"
	TestRunCreate Permission = "test-run:create"
	TestRunUpdate Permission = "test-run:update"
	TestRunDelete Permission = "test-run:delete"

	BugList   Permission = "bug:list"
	BugView   Permission = "bug:view"
	BugCreate Permission = "bug:create"
	BugUpdate Permission = "bug:update"
	BugDelete Permission = "bug:delete"

	ReportList   Permission = "report:list"
	ReportView   Permission = "report:view"
	ReportCreate Permission = "report:create"
	ReportDelete Permission = "report:delete"

	OrgMemberList   Permission = "org-member:list"
	OrgMemberUpdate Permission = "org-member:update"
	OrgMemberDelete Permission = "org-member:delete"

	APIKeyList   Permission = "api-key:list"
	APIKeyCreate Permission = "api-key:create"
	APIKeyDelete Permission = "api-key:delete"

	UserList   Permission = "user:list"
	UserView   Permission = "user:view"
	UserCreate Permission = "user:create"
	UserUpdate Permission = "user:update"
	UserDelete Permission = "user:delete"
)

// All enumerates every permission in the registry. Tests assert uniqueness
// and that the role tables reference nothing outside this slice.
var All = []Permission{
	ProjectList, ProjectView, ProjectCreate, ProjectUpdate, ProjectDelete,
	TestPlanList, TestPlanView, TestPlanCreate, TestPlanUpdate, TestPlanDelete,
	TestCaseList, TestCaseView, TestCaseCreate, TestCaseUpdate, TestCaseDelete,
	TestRunList, TestRunView, TestRunCreate, TestRunUpdate, TestRunDelete,
	BugList, BugView, BugCreate, BugUpdate, BugDelete,
	ReportList, ReportView, ReportCreate, ReportDelete,
	OrgMemberList, OrgMemberUpdate, OrgMemberDelete,
	APIKeyList, APIKeyCreate, APIKeyDelete,
	UserList, UserView, UserCreate, UserUpdate, UserDelete,
}

// ReadOnly is the subset of the registry granting list/view access only.
var ReadOnly = []Permission{
	ProjectList, ProjectView,
	TestPlanList, TestPlanView,
	TestCaseList, TestCaseView,
	TestRunList, TestRunView,
	BugList, BugView,
	ReportList, ReportView,
	OrgMemberList,
	APIKeyList,
	UserList, UserView,
}

// Set is an immutable-by-convention permission set. The role tables are
// built once at package init and read concurrently afterwards; nothing may
// mutate a Set after init.
type Set map[Permission]struct{}

// NewSet builds a Set from perms.
func NewSet(perms ...Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether p is in the set.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union returns a new Set containing s plus all members of others.
// Role inheritance (viewer ⊂ editor ⊂ admin) is expressed through Union at
// construction time, so a permission added to a base role propagates to the
// derived roles with no further call sites.
func (s Set) Union(others ...Set) Set {
	out := make(Set, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	for _, o := range others {
		for p := range o {
			out[p] = struct{}{}
		}
	}
	return out
}

// allExcept returns the full registry minus excluded.
func allExcept(excluded ...Permission) Set {
	s := NewSet(All...)
	for _, p := range excluded {
		delete(s, p)
	}
	return s
}
