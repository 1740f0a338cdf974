// ABOUTME: GitHub OAuth2 login flow: init redirect and callback handler.
// ABOUTME: Matches on GitHub numeric user ID, never on email.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// githubUser is the subset of fields returned by GET https://api.github.com/user.
type githubUser struct {
	ID    int64  `json:"id"`    // immutable numeric ID — the authoritative identity key
	Login string `json:"login"` // display name fallback when Name is empty
	Name  string `json:"name"`
}

// githubEmail is one entry from GET https://api.github.com/user/emails.
type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// githubInitHandler handles GET /api/v1/auth/oauth/github.
// Generates state, sets the oauth_state cookie, and redirects to GitHub's authorize URL.
func (srv *Server) githubInitHandler(w http.ResponseWriter, r *http.Request) {
	if srv.ghOAuth == nil {
		http.Error(w, "GitHub OAuth not configured", http.StatusNotImplemented)
		return
	}
	state, err := generateOAuthState()
	if err != nil {
		slog.ErrorContext(r.Context(), "github oauth init: generate state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	srv.setStateCookie(w, state)
	http.Redirect(w, r, srv.ghOAuth.AuthCodeURL(state), http.StatusFound)
}

// githubCallbackHandler handles GET /api/v1/auth/oauth/github/callback.
// Validates state, exchanges the code, fetches user info, upserts the identity,
// and issues JWT tokens as HttpOnly cookies.
func (srv *Server) githubCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state := r.URL.Query().Get("state")
	if err := srv.validateStateCookie(r, w, state); err != nil {
		http.Error(w, "invalid state: "+err.Error(), http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	token, err := srv.ghOAuth.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "github oauth: exchange code", "error", err)
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}

	httpClient := srv.ghOAuth.Client(ctx, token)

	userReq, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.ghAPIBaseURL+"/user", nil)
	if err != nil {
		slog.ErrorContext(ctx, "github oauth: build user request", "error", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	resp, err := httpClient.Do(userReq)
	if err != nil {
		slog.ErrorContext(ctx, "github oauth: fetch user", "error", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close() //nolint:errcheck
	var ghUser githubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		slog.ErrorContext(ctx, "github oauth: decode user", "error", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// Fetch verified primary email (user:email scope required).
	emailsReq, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.ghAPIBaseURL+"/user/emails", nil)
	if err != nil {
		slog.ErrorContext(ctx, "github oauth: build emails request", "error", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	resp2, err := httpClient.Do(emailsReq)
	if err != nil {
		slog.ErrorContext(ctx, "github oauth: fetch emails", "error", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	defer resp2.Body.Close() //nolint:errcheck
	var ghEmails []githubEmail
	if err := json.NewDecoder(resp2.Body).Decode(&ghEmails); err != nil {
		slog.ErrorContext(ctx, "github oauth: decode emails", "error", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	var primaryEmail string
	for _, e := range ghEmails {
		if e.Primary && e.Verified {
			primaryEmail = e.Email
			break
		}
	}
	if primaryEmail == "" {
		http.Error(w, "no verified primary email on GitHub account", http.StatusBadRequest)
		return
	}

	// Look up user by GitHub numeric ID — never by email.
	providerUserID := strconv.FormatInt(ghUser.ID, 10)
	user, err := srv.store.GetUserByProviderID(ctx, "github", providerUserID)
	if err != nil {
		slog.ErrorContext(ctx, "github oauth: get user by provider id", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if user == nil {
		// New user — create account with no password (OAuth-only).
		displayName := ghUser.Name
		if displayName == "" {
			displayName = ghUser.Login
		}
		user, err = srv.store.CreateUser(ctx, primaryEmail, displayName, "", 0)
		if err != nil {
			slog.ErrorContext(ctx, "github oauth: create user", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	// Upsert identity to keep email current (GitHub email may change).
	if err := srv.store.UpsertUserIdentity(ctx, user.ID, "github", providerUserID, primaryEmail); err != nil {
		slog.ErrorContext(ctx, "github oauth: upsert identity", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	srv.completeOAuthLogin(w, r, user)
}
