// ABOUTME: Google OIDC login flow: init redirect and callback handler.
// ABOUTME: Matches on the Google account sub claim, never on email.
package api

import (
	"log/slog"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// googleClaims holds the subset of Google ID token claims we use.
type googleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Nonce         string `json:"nonce"`
}

// googleInitHandler handles GET /api/v1/auth/oauth/google.
// Generates state + nonce, sets cookies, and redirects to Google's authorize URL.
func (srv *Server) googleInitHandler(w http.ResponseWriter, r *http.Request) {
	if srv.googleOIDC == nil {
		http.Error(w, "Google OIDC not configured", http.StatusNotImplemented)
		return
	}
	state, err := generateOAuthState()
	if err != nil {
		slog.ErrorContext(r.Context(), "google oidc init: generate state", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	nonce, err := generateOAuthState() // reuses the same CSPRNG helper for nonce
	if err != nil {
		slog.ErrorContext(r.Context(), "google oidc init: generate nonce", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	srv.setStateCookie(w, state)
	srv.setNonceCookie(w, nonce)
	authURL := srv.googleOAuth.AuthCodeURL(state, oauth2.SetAuthURLParam("nonce", nonce))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// googleCallbackHandler handles GET /api/v1/auth/oauth/google/callback.
// Validates state + nonce, verifies the ID token, upserts the identity,
// and issues JWT tokens as HttpOnly cookies.
func (srv *Server) googleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if srv.googleOIDC == nil {
		http.Error(w, "Google OIDC not configured", http.StatusNotImplemented)
		return
	}

	state := r.URL.Query().Get("state")
	if err := srv.validateStateCookie(r, w, state); err != nil {
		http.Error(w, "invalid state: "+err.Error(), http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	token, err := srv.googleOAuth.Exchange(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "google oidc: exchange code", "error", err)
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		slog.ErrorContext(ctx, "google oidc: missing id_token in token response")
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}
	verifier := srv.googleOIDC.Verifier(&oidc.Config{ClientID: srv.googleOAuth.ClientID})
	idToken, err := verifier.Verify(ctx, rawIDToken)
	if err != nil {
		slog.ErrorContext(ctx, "google oidc: verify id token", "error", err)
		http.Error(w, "authentication failed", http.StatusBadRequest)
		return
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		slog.ErrorContext(ctx, "google oidc: extract claims", "error", err)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	if claims.Sub == "" {
		http.Error(w, "missing sub in ID token", http.StatusBadRequest)
		return
	}
	if !claims.EmailVerified {
		http.Error(w, "email not verified on Google account", http.StatusBadRequest)
		return
	}

	storedNonce, err := srv.validateNonceCookie(r, w)
	if err != nil {
		http.Error(w, "invalid nonce: "+err.Error(), http.StatusBadRequest)
		return
	}
	if storedNonce != claims.Nonce {
		http.Error(w, "nonce mismatch", http.StatusBadRequest)
		return
	}

	// Look up user by Google sub — never by email.
	user, err := srv.store.GetUserByProviderID(ctx, "google", claims.Sub)
	if err != nil {
		slog.ErrorContext(ctx, "google oidc: get user by provider id", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if user == nil {
		// New user — create account (no password; Google-only auth).
		displayName := claims.Name
		if displayName == "" {
			displayName = claims.Email
		}
		user, err = srv.store.CreateUser(ctx, claims.Email, displayName, "", 0)
		if err != nil {
			slog.ErrorContext(ctx, "google oidc: create user", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	// Upsert identity to keep email current (Google email may change).
	if err := srv.store.UpsertUserIdentity(ctx, user.ID, "google", claims.Sub, claims.Email); err != nil {
		slog.ErrorContext(ctx, "google oidc: upsert identity", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	srv.completeOAuthLogin(w, r, user)
}
