// ABOUTME: Integration tests for auth HTTP handlers (register, login, refresh, logout, me).
// ABOUTME: Uses real Postgres via testutil.NewTestDB and the full srv.Handler() stack.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/auth"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/config"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/testutil"
)

// cookieValue extracts the value of a named cookie from an HTTP response.
// Returns "" if not found.
func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// doRegister registers a user and returns the parsed response body.
func doRegister(t *testing.T, ctx context.Context, ts *httptest.Server, email, password string) struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
} {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("register request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: got %d, want 201", resp.StatusCode)
	}
	var out struct {
		UserID string `json:"user_id"`
		OrgID  string `json:"org_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("register decode: %v", err)
	}
	return out
}

// doLogin logs in and returns the response (caller must close Body).
func doLogin(t *testing.T, ctx context.Context, ts *httptest.Server, email, password string) *http.Response {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	return resp
}

// newRegisterServer creates a full Server + httptest.Server for auth handler tests.
func newRegisterServer(t *testing.T, db *testutil.TestDB, regMode string) (*Server, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{ //nolint:exhaustruct // test: only relevant fields set
		JWTSecret:           "regtestsecret",
		RegistrationMode:    regMode,
		Argon2MaxConcurrent: 5,
	}
	srv, err := NewServer(context.Background(), db.Store, cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestRegisterFirstUser(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	out := doRegister(t, ctx, ts, "first@example.com", "password123")
	if out.UserID == "" {
		t.Fatal("register: empty user_id")
	}
	if out.OrgID == "" {
		t.Error("first user should get a personal org")
	}

	// The first account bootstraps platform administration.
	user, err := db.GetUserByID(ctx, uuid.MustParse(out.UserID))
	if err != nil || user == nil {
		t.Fatalf("get user: %v", err)
	}
	if len(user.GlobalRoles) != 1 || user.GlobalRoles[0] != "super_admin" {
		t.Errorf("first user global_roles = %v, want [super_admin]", user.GlobalRoles)
	}

	// Second user gets no global roles.
	out2 := doRegister(t, ctx, ts, "second@example.com", "password123")
	user2, err := db.GetUserByID(ctx, uuid.MustParse(out2.UserID))
	if err != nil || user2 == nil {
		t.Fatalf("get second user: %v", err)
	}
	if len(user2.GlobalRoles) != 0 {
		t.Errorf("second user global_roles = %v, want none", user2.GlobalRoles)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	doRegister(t, ctx, ts, "dup@example.com", "password123")

	body := `{"email":"dup@example.com","password":"password456"}`
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate email: got %d, want 409", resp.StatusCode)
	}
}

func TestRegisterClosedMode(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "closed")

	body := `{"email":"closed@example.com","password":"password123"}`
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/register", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("closed registration: got %d, want 403", resp.StatusCode)
	}
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	doRegister(t, ctx, ts, "login@example.com", "password123")
	resp := doLogin(t, ctx, ts, "login@example.com", "password123")
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: got %d, want 200", resp.StatusCode)
	}
	if cookieValue(resp, "access_token") == "" {
		t.Error("access_token cookie not set")
	}
	if cookieValue(resp, "refresh_token") == "" {
		t.Error("refresh_token cookie not set")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	doRegister(t, ctx, ts, "wrongpw@example.com", "password123")
	resp := doLogin(t, ctx, ts, "wrongpw@example.com", "notthepassword")
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong password: got %d, want 401", resp.StatusCode)
	}
}

func TestLoginNonexistentUser(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	resp := doLogin(t, ctx, ts, "nobody@example.com", "password123")
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("nonexistent user: got %d, want 401", resp.StatusCode)
	}
}

func TestRefreshRotates(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	doRegister(t, ctx, ts, "refresh@example.com", "password123")
	loginResp := doLogin(t, ctx, ts, "refresh@example.com", "password123")
	loginResp.Body.Close() //nolint:errcheck
	oldRefreshToken := cookieValue(loginResp, "refresh_token")
	if oldRefreshToken == "" {
		t.Fatal("no refresh_token cookie after login")
	}

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: oldRefreshToken})
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("refresh request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: got %d, want 200", resp.StatusCode)
	}
	if cookieValue(resp, "access_token") == "" {
		t.Error("new access_token cookie not set after refresh")
	}
	newRefreshToken := cookieValue(resp, "refresh_token")
	if newRefreshToken == "" || newRefreshToken == oldRefreshToken {
		t.Error("new refresh_token should differ from old")
	}

	oldClaims, err := auth.ParseRefreshToken(oldRefreshToken, []byte("regtestsecret"))
	if err != nil {
		t.Fatalf("parse old refresh token: %v", err)
	}
	stored, err := db.GetRefreshToken(ctx, oldClaims.JTI)
	if err != nil || stored == nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored.UsedAt == nil {
		t.Error("old refresh token should be marked used")
	}
	if stored.ReplacedByJTI == nil {
		t.Error("old refresh token should record its replacement")
	}
}

func TestRefreshGraceWindow(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	doRegister(t, ctx, ts, "grace@example.com", "password123")
	loginResp := doLogin(t, ctx, ts, "grace@example.com", "password123")
	loginResp.Body.Close() //nolint:errcheck
	firstRefreshToken := cookieValue(loginResp, "refresh_token")

	req1, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/refresh", nil)
	req1.AddCookie(&http.Cookie{Name: "refresh_token", Value: firstRefreshToken})
	resp1, err := ts.Client().Do(req1) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	resp1.Body.Close() //nolint:errcheck
	if resp1.StatusCode != http.StatusOK {
		t.Fatalf("first refresh: got %d", resp1.StatusCode)
	}

	// Same token again, still inside the grace window: retried delivery, not theft.
	req2, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/refresh", nil)
	req2.AddCookie(&http.Cookie{Name: "refresh_token", Value: firstRefreshToken})
	resp2, err := ts.Client().Do(req2) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("grace refresh: %v", err)
	}
	defer resp2.Body.Close() //nolint:errcheck
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("grace window refresh: got %d, want 200", resp2.StatusCode)
	}
}

func TestRefreshTheftDetection(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	regOut := doRegister(t, ctx, ts, "theft@example.com", "password123")
	loginResp := doLogin(t, ctx, ts, "theft@example.com", "password123")
	loginResp.Body.Close() //nolint:errcheck
	firstRefreshToken := cookieValue(loginResp, "refresh_token")

	req1, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/refresh", nil)
	req1.AddCookie(&http.Cookie{Name: "refresh_token", Value: firstRefreshToken})
	resp1, err := ts.Client().Do(req1) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	resp1.Body.Close() //nolint:errcheck

	// Backdate used_at to push the reuse outside the grace window.
	oldClaims, err := auth.ParseRefreshToken(firstRefreshToken, []byte("regtestsecret"))
	if err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}
	if _, err := db.Pool().Exec(ctx,
		"UPDATE refresh_tokens SET used_at = now() - interval '2 minutes' WHERE jti = $1",
		oldClaims.JTI); err != nil {
		t.Fatalf("backdate used_at: %v", err)
	}

	req2, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/refresh", nil)
	req2.AddCookie(&http.Cookie{Name: "refresh_token", Value: firstRefreshToken})
	resp2, err := ts.Client().Do(req2) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("theft re-use: %v", err)
	}
	defer resp2.Body.Close() //nolint:errcheck
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("token reuse outside grace: got %d, want 401", resp2.StatusCode)
	}

	// All outstanding sessions are revoked via the token_version bump.
	user, err := db.GetUserByID(ctx, uuid.MustParse(regOut.UserID))
	if err != nil || user == nil {
		t.Fatalf("get user: %v", err)
	}
	if user.TokenVersion <= 1 {
		t.Errorf("token_version should have been incremented, got %d", user.TokenVersion)
	}
}

func TestLogoutClearsCookies(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	doRegister(t, ctx, ts, "logout@example.com", "password123")
	loginResp := doLogin(t, ctx, ts, "logout@example.com", "password123")
	loginResp.Body.Close() //nolint:errcheck
	refreshToken := cookieValue(loginResp, "refresh_token")

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: refreshToken})
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout: got %d, want 200", resp.StatusCode)
	}
	for _, c := range resp.Cookies() {
		if (c.Name == "access_token" || c.Name == "refresh_token") && c.MaxAge >= 0 && c.Value != "" {
			t.Errorf("cookie %s not cleared on logout", c.Name)
		}
	}

	// The stored token is consumed: refreshing with it now fails.
	claims, err := auth.ParseRefreshToken(refreshToken, []byte("regtestsecret"))
	if err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}
	stored, err := db.GetRefreshToken(ctx, claims.JTI)
	if err != nil || stored == nil {
		t.Fatalf("get stored token: %v", err)
	}
	if stored.UsedAt == nil {
		t.Error("refresh token should be marked used after logout")
	}
}

func TestGetMe(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	_, ts := newRegisterServer(t, db, "open")

	out := doRegister(t, ctx, ts, "me@example.com", "password123")
	loginResp := doLogin(t, ctx, ts, "me@example.com", "password123")
	loginResp.Body.Close() //nolint:errcheck
	accessToken := cookieValue(loginResp, "access_token")

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: accessToken})
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("get me: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get me: got %d, want 200", resp.StatusCode)
	}
	var body struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
		Orgs   []struct {
			OrgID string `json:"org_id"`
			Role  string `json:"role"`
		} `json:"orgs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if body.UserID != out.UserID {
		t.Errorf("me user_id = %q, want %q", body.UserID, out.UserID)
	}
	if body.Email != "me@example.com" {
		t.Errorf("me email = %q", body.Email)
	}
	if len(body.Orgs) != 1 || body.Orgs[0].Role != "owner" {
		t.Errorf("me orgs = %+v, want one owner entry", body.Orgs)
	}
}
