// ABOUTME: HTTP handlers for org API key management: create, list, revoke.
// ABOUTME: The raw key is returned exactly once; only its SHA-256 hash is stored.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/auth"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
)

type createAPIKeyBody struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	ExpiresIn int    `json:"expires_in_days,omitempty"` // 0 = no expiry
}

type apiKeyEntry struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	CreatedAt  string `json:"created_at"`
	ExpiresAt  string `json:"expires_at,omitempty"`
	LastUsedAt string `json:"last_used_at,omitempty"`
}

// createAPIKeyHandler handles POST /api/v1/orgs/{org_id}/api-keys.
// The key's role may not exceed the caller's own effective org role —
// otherwise a member could mint an admin credential.
func (srv *Server) createAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	pc, ok := policyFrom(r.Context())
	if !ok {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var req createAPIKeyBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	keyRole, ok := authz.ParseOrgRole(req.Role)
	if !ok {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	if pc.OrganizationRole == nil || orgRoleRank[keyRole] > orgRoleRank[*pc.OrganizationRole] {
		http.Error(w, "key role may not exceed your own role", http.StatusForbidden)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresIn > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresIn)
		expiresAt = &t
	}

	rawKey, keyHash, err := auth.GenerateAPIKey()
	if err != nil {
		slog.ErrorContext(r.Context(), "create api key: generate", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	key, err := srv.store.CreateAPIKey(r.Context(), orgID, pc.UserID, keyHash, req.Name, string(keyRole), expiresAt)
	if err != nil {
		slog.ErrorContext(r.Context(), "create api key", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// The raw key appears in this response and nowhere else.
	resp := map[string]string{
		"id":   key.ID.String(),
		"name": key.Name,
		"role": key.Role,
		"key":  rawKey,
	}
	writeJSON(w, http.StatusCreated, resp)
}

// listAPIKeysHandler handles GET /api/v1/orgs/{org_id}/api-keys.
func (srv *Server) listAPIKeysHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	keys, err := srv.store.ListAPIKeys(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list api keys", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]apiKeyEntry, 0, len(keys))
	for _, k := range keys {
		entry := apiKeyEntry{
			ID:        k.ID.String(),
			Name:      k.Name,
			Role:      k.Role,
			CreatedAt: k.CreatedAt.Format(time.RFC3339),
		}
		if k.ExpiresAt != nil {
			entry.ExpiresAt = k.ExpiresAt.Format(time.RFC3339)
		}
		if k.LastUsedAt != nil {
			entry.LastUsedAt = k.LastUsedAt.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"api_keys": out})
}

// revokeAPIKeyHandler handles DELETE /api/v1/orgs/{org_id}/api-keys/{id}.
func (srv *Server) revokeAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid key id", http.StatusBadRequest)
		return
	}

	revoked, err := srv.store.RevokeAPIKey(r.Context(), orgID, keyID)
	if err != nil {
		slog.ErrorContext(r.Context(), "revoke api key", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !revoked {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
