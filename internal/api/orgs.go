// ABOUTME: HTTP handlers for org management: CRUD, members, invitations.
// ABOUTME: Invitation emails are enqueued as jobs; SMTP never blocks the request.
package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
)

// InviteEmailQueue is the job queue name for invitation email delivery.
const InviteEmailQueue = "invite_email"

// InviteEmailPayload is the job payload for one invitation email.
type InviteEmailPayload struct {
	Recipient    string `json:"recipient"`
	OrgName      string `json:"org_name"`
	InviterEmail string `json:"inviter_email"`
	AcceptURL    string `json:"accept_url"`
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON: encode failed", "error", err)
	}
}

// ── Org CRUD ──────────────────────────────────────────────────────────────────

type createOrgBody struct {
	Name string `json:"name"`
}

type orgResponseBody struct {
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

type updateOrgBody struct {
	Name string `json:"name"`
}

// createOrgHandler handles POST /api/v1/orgs.
// Creates a new org and adds the authenticated user as owner. Any
// authenticated user may create an org — there is nothing to guard yet.
func (srv *Server) createOrgHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createOrgBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	org, err := srv.store.CreateOrgWithOwner(r.Context(), req.Name, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create org", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, orgResponseBody{
		OrgID: org.ID.String(),
		Name:  org.Name,
	})
}

// getOrgHandler handles GET /api/v1/orgs/{org_id}.
func (srv *Server) getOrgHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	org, err := srv.store.GetOrgByID(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get org", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if org == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, orgResponseBody{
		OrgID:     org.ID.String(),
		Name:      org.Name,
		CreatedAt: org.CreatedAt.Format(time.RFC3339),
	})
}

// updateOrgHandler handles PATCH /api/v1/orgs/{org_id}.
func (srv *Server) updateOrgHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var req updateOrgBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	org, err := srv.store.UpdateOrg(r.Context(), orgID, req.Name)
	if err != nil {
		slog.ErrorContext(r.Context(), "update org", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if org == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, orgResponseBody{
		OrgID:     org.ID.String(),
		Name:      org.Name,
		CreatedAt: org.CreatedAt.Format(time.RFC3339),
	})
}

// ── Members ───────────────────────────────────────────────────────────────────

type memberEntry struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	JoinedAt    string `json:"joined_at"`
}

// listMembersHandler handles GET /api/v1/orgs/{org_id}/members.
func (srv *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	rows, err := srv.store.ListOrgMembers(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list members", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]memberEntry, 0, len(rows))
	for _, m := range rows {
		out = append(out, memberEntry{
			UserID:      m.UserID.String(),
			Email:       m.Email,
			DisplayName: m.DisplayName,
			Role:        m.Role,
			JoinedAt:    m.JoinedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out})
}

type updateMemberRoleBody struct {
	Role string `json:"role"`
}

// updateMemberRoleHandler handles PATCH /api/v1/orgs/{org_id}/members/{user_id}.
// Demoting the last owner is refused — an org must always have one.
func (srv *Server) updateMemberRoleHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	var req updateMemberRoleBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, ok := authz.ParseOrgRole(req.Role); !ok {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	currentRole, err := srv.store.GetOrgMemberRole(r.Context(), orgID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "update member role: get current", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if currentRole == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if *currentRole == string(authz.OrgOwner) && req.Role != string(authz.OrgOwner) {
		owners, err := srv.store.GetOrgOwnerCount(r.Context(), orgID)
		if err != nil {
			slog.ErrorContext(r.Context(), "update member role: count owners", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if owners <= 1 {
			http.Error(w, "cannot demote the last owner", http.StatusConflict)
			return
		}
	}

	if err := srv.store.UpdateOrgMemberRole(r.Context(), orgID, targetID, req.Role); err != nil {
		slog.ErrorContext(r.Context(), "update member role", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": targetID.String(), "role": req.Role})
}

// removeMemberHandler handles DELETE /api/v1/orgs/{org_id}/members/{user_id}.
// Removing the last owner is refused.
func (srv *Server) removeMemberHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	targetID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	currentRole, err := srv.store.GetOrgMemberRole(r.Context(), orgID, targetID)
	if err != nil {
		slog.ErrorContext(r.Context(), "remove member: get current", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if currentRole == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	if *currentRole == string(authz.OrgOwner) {
		owners, err := srv.store.GetOrgOwnerCount(r.Context(), orgID)
		if err != nil {
			slog.ErrorContext(r.Context(), "remove member: count owners", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if owners <= 1 {
			http.Error(w, "cannot remove the last owner", http.StatusConflict)
			return
		}
	}

	if err := srv.store.RemoveOrgMember(r.Context(), orgID, targetID); err != nil {
		slog.ErrorContext(r.Context(), "remove member", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Invitations ───────────────────────────────────────────────────────────────

type createInvitationBody struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type invitationEntry struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

// createInvitationHandler handles POST /api/v1/orgs/{org_id}/invitations.
// Stores the invitation and enqueues an invite_email job — SMTP delivery
// happens in the worker, with retries, never on the request path.
func (srv *Server) createInvitationHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	userID, _ := r.Context().Value(ctxUserID).(uuid.UUID)

	var req createInvitationBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	role, ok := authz.ParseOrgRole(req.Role)
	if !ok {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	// Invitations cannot mint owners — ownership transfers go through member
	// role updates by an existing owner.
	if role == authz.OrgOwner {
		http.Error(w, "cannot invite as owner", http.StatusBadRequest)
		return
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		slog.ErrorContext(r.Context(), "create invitation: token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	token := hex.EncodeToString(tokenBytes)

	ttl := time.Duration(srv.cfg.InviteTTLHours) * time.Hour
	inv, err := srv.store.CreateOrgInvitation(r.Context(), orgID, req.Email, string(role), token, userID, time.Now().Add(ttl))
	if err != nil {
		slog.ErrorContext(r.Context(), "create invitation", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	org, err := srv.store.GetOrgByID(r.Context(), orgID)
	if err != nil || org == nil {
		slog.ErrorContext(r.Context(), "create invitation: get org", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	inviter, err := srv.store.GetUserByID(r.Context(), userID)
	if err != nil || inviter == nil {
		slog.ErrorContext(r.Context(), "create invitation: get inviter", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(InviteEmailPayload{
		Recipient:    req.Email,
		OrgName:      org.Name,
		InviterEmail: inviter.Email,
		AcceptURL:    srv.cfg.ExternalURL + "/api/v1/auth/invitations/" + token,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "create invitation: marshal payload", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if _, err := srv.store.EnqueueJob(r.Context(), InviteEmailQueue, payload, 5); err != nil {
		// The invitation exists; the link can still be shared manually.
		slog.ErrorContext(r.Context(), "create invitation: enqueue email", "error", err)
	}

	writeJSON(w, http.StatusCreated, invitationEntry{
		ID:        inv.ID.String(),
		Email:     inv.Email,
		Role:      inv.Role,
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
	})
}

// listInvitationsHandler handles GET /api/v1/orgs/{org_id}/invitations.
// Returns pending, unexpired invitations only.
func (srv *Server) listInvitationsHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	rows, err := srv.store.ListOrgInvitations(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list invitations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]invitationEntry, 0, len(rows))
	for _, inv := range rows {
		out = append(out, invitationEntry{
			ID:        inv.ID.String(),
			Email:     inv.Email,
			Role:      inv.Role,
			ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

// cancelInvitationHandler handles DELETE /api/v1/orgs/{org_id}/invitations/{id}.
func (srv *Server) cancelInvitationHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	invID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid invitation id", http.StatusBadRequest)
		return
	}

	if err := srv.store.CancelInvitation(r.Context(), orgID, invID); err != nil {
		slog.ErrorContext(r.Context(), "cancel invitation", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
