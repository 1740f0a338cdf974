// ABOUTME: Registry invariants: uniqueness, closure of role tables, identifier format.
// ABOUTME: Violations here are construction bugs — they can never surface at request time.
package authz

import (
	"strings"
	"testing"
)

func TestRegistryHasNoDuplicates(t *testing.T) {
	t.Parallel()
	seen := make(map[Permission]struct{}, len(All))
	for _, p := range All {
		if _, dup := seen[p]; dup {
			t.Errorf("duplicate permission in registry: %q", p)
		}
		seen[p] = struct{}{}
	}
}

func TestRegistryIdentifierFormat(t *testing.T) {
	t.Parallel()
	for _, p := range All {
		res, act := p.Split()
		if res == "" || act == "" {
			t.Errorf("permission %q does not split into resource:action", p)
		}
		if strings.Count(string(p), ":") != 1 {
			t.Errorf("permission %q contains more than one separator", p)
		}
	}
}

func TestReadOnlySubsetIsListViewOnly(t *testing.T) {
	t.Parallel()
	all := NewSet(All...)
	for _, p := range ReadOnly {
		if !all.Has(p) {
			t.Errorf("read-only permission %q is not in the registry", p)
		}
		if act := p.Action(); act != ActionList && act != ActionView {
			t.Errorf("read-only permission %q has action %q, want list or view", p, act)
		}
	}
}

// Every permission referenced by any role table must be a registry member —
// a typo in a table literal fails here, not in production.
func TestRoleTablesAreClosedOverRegistry(t *testing.T) {
	t.Parallel()
	registry := NewSet(All...)

	check := func(table string, s Set) {
		for p := range s {
			if !registry.Has(p) {
				t.Errorf("%s table references unknown permission %q", table, p)
			}
		}
	}
	for role, s := range globalRolePermissions {
		check("global/"+string(role), s)
	}
	for role, s := range orgRolePermissions {
		check("org/"+string(role), s)
	}
	for role, s := range projectRolePermissions {
		check("project/"+string(role), s)
	}
}

func TestSplitMalformed(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      Permission
		wantRes Resource
		wantAct Action
	}{
		{"test-run:update", "test-run", "update"},
		{"noseparator", "noseparator", ""},
		{"", "", ""},
		{"trailing:", "trailing", ""},
	}
	for _, tc := range cases {
		res, act := tc.in.Split()
		if res != tc.wantRes || act != tc.wantAct {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tc.in, res, act, tc.wantRes, tc.wantAct)
		}
	}
}

func TestSetUnionDoesNotMutateReceiver(t *testing.T) {
	t.Parallel()
	base := NewSet(BugList)
	union := base.Union(NewSet(BugCreate))
	if base.Has(BugCreate) {
		t.Error("Union mutated the receiver set")
	}
	if !union.Has(BugList) || !union.Has(BugCreate) {
		t.Error("Union result is missing members")
	}
}
