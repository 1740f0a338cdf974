// ABOUTME: OAuth helper functions: state/nonce generation, cookie management.
// ABOUTME: Used by GitHub OAuth2 and Google OIDC flow handlers.
package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/auth"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/store"
)

// generateOAuthState generates 32 random bytes as a hex string for the OAuth state param.
func generateOAuthState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// setStateCookie sets the oauth_state HttpOnly cookie with a 5-minute expiry.
// SameSite=Lax is REQUIRED (not Strict) — the callback is a cross-site redirect.
func (srv *Server) setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		HttpOnly: true,
		Secure:   srv.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
		Path:     "/",
	})
}

// validateStateCookie reads and deletes the oauth_state cookie, returning an error
// if the cookie is missing or its value doesn't match the stateParam from the query string.
func (srv *Server) validateStateCookie(r *http.Request, w http.ResponseWriter, stateParam string) error {
	cookie, err := r.Cookie("oauth_state")
	if err != nil {
		return errors.New("missing oauth_state cookie")
	}
	// Delete the cookie immediately (one-time use).
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		HttpOnly: true,
		Secure:   srv.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Path:     "/",
	})
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(stateParam)) != 1 {
		return errors.New("oauth_state mismatch")
	}
	return nil
}

// setNonceCookie sets the oidc_nonce HttpOnly cookie for Google OIDC nonce verification.
func (srv *Server) setNonceCookie(w http.ResponseWriter, nonce string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "oidc_nonce",
		Value:    nonce,
		HttpOnly: true,
		Secure:   srv.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
		Path:     "/",
	})
}

// validateNonceCookie reads and deletes the oidc_nonce cookie, returning its value.
func (srv *Server) validateNonceCookie(r *http.Request, w http.ResponseWriter) (string, error) {
	cookie, err := r.Cookie("oidc_nonce")
	if err != nil {
		return "", errors.New("missing oidc_nonce cookie")
	}
	// Delete the cookie immediately (one-time use).
	http.SetCookie(w, &http.Cookie{
		Name:     "oidc_nonce",
		Value:    "",
		HttpOnly: true,
		Secure:   srv.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Path:     "/",
	})
	return cookie.Value, nil
}

// completeOAuthLogin issues a JWT access + refresh pair for user, records the
// refresh token, sets the auth cookies, and writes the login response.
// Shared by the GitHub and Google callback handlers.
func (srv *Server) completeOAuthLogin(w http.ResponseWriter, r *http.Request, user *store.User) {
	ctx := r.Context()
	secret := []byte(srv.cfg.JWTSecret)
	jti := uuid.New()

	accessToken, err := auth.IssueAccessToken(secret, user.ID, user.GlobalRoles, user.TokenVersion, accessTokenTTL)
	if err != nil {
		slog.ErrorContext(ctx, "oauth login: issue access token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	refreshTokenStr, err := auth.IssueRefreshToken(secret, user.ID, user.TokenVersion, jti, refreshTokenTTL)
	if err != nil {
		slog.ErrorContext(ctx, "oauth login: issue refresh token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := srv.store.CreateRefreshToken(ctx, jti, user.ID, user.TokenVersion, time.Now().Add(refreshTokenTTL)); err != nil {
		slog.ErrorContext(ctx, "oauth login: create refresh token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	for _, cookieStr := range authCookies(accessToken, refreshTokenStr, srv.cfg.CookieSecure) {
		w.Header().Add("Set-Cookie", cookieStr)
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": user.ID.String()})
}
