// ABOUTME: Stable fingerprint of the compiled role-permission tables.
// ABOUTME: Canonical JSON (RFC 8785) hashed with sha256; logged at startup for drift detection.
package authz

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// policySnapshot is the serialized form of the three role tables.
type policySnapshot struct {
	Global       map[string][]string `json:"global"`
	Organization map[string][]string `json:"organization"`
	Project      map[string][]string `json:"project"`
}

func sortedPerms(s Set) []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

// Fingerprint returns the sha256 hex digest of the canonical JSON encoding
// of the role-permission tables. Two binaries with the same compiled policy
// produce the same fingerprint, so operators can spot a deployment running a
// stale policy by comparing /healthz output across instances.
func Fingerprint() (string, error) {
	snap := policySnapshot{
		Global:       make(map[string][]string, len(globalRolePermissions)),
		Organization: make(map[string][]string, len(orgRolePermissions)),
		Project:      make(map[string][]string, len(projectRolePermissions)),
	}
	for role, set := range globalRolePermissions {
		snap.Global[string(role)] = sortedPerms(set)
	}
	for role, set := range orgRolePermissions {
		snap.Organization[string(role)] = sortedPerms(set)
	}
	for role, set := range projectRolePermissions {
		snap.Project[string(role)] = sortedPerms(set)
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal policy: %w", err)
	}
	canonical, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize policy: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
