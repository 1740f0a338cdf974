// ABOUTME: Tests for RequireAuthenticated middleware (JWT cookie + API key Bearer).
// ABOUTME: Uses package api to access unexported context keys and Server fields.
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/auth"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/config"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/testutil"
)

// newAuthTestServer builds a minimal Server with the given JWTSecret and optional store.
func newAuthTestServer(t *testing.T, jwtSecret string, db *testutil.TestDB) *Server {
	t.Helper()
	cfg := &config.Config{JWTSecret: jwtSecret} //nolint:exhaustruct // test: only JWT secret needed
	var srv *Server
	var err error
	if db != nil {
		srv, err = NewServer(context.Background(), db.Store, cfg)
	} else {
		srv, err = NewServer(context.Background(), nil, cfg)
	}
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestRequireAuthenticated_NoCredentials_401(t *testing.T) {
	t.Parallel()
	srv := newAuthTestServer(t, "testsecret", nil)
	handler := srv.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive: ts.URL is httptest.Server, not user input
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no credentials: got %d, want 401", resp.StatusCode)
	}
}

func TestRequireAuthenticated_JWT_Valid(t *testing.T) {
	t.Parallel()
	secret := []byte("testsecret")
	userID := uuid.New()
	token, err := auth.IssueAccessToken(secret, userID, []string{"support"}, 1, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	srv := newAuthTestServer(t, "testsecret", nil)
	var gotUserID uuid.UUID
	var gotRoles []authz.GlobalRole
	handler := srv.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = r.Context().Value(ctxUserID).(uuid.UUID)
		gotRoles, _ = r.Context().Value(ctxGlobalRoles).([]authz.GlobalRole)
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid JWT: got %d, want 200", resp.StatusCode)
	}
	if gotUserID != userID {
		t.Errorf("ctxUserID = %v, want %v", gotUserID, userID)
	}
	if len(gotRoles) != 1 || gotRoles[0] != authz.GlobalSupport {
		t.Errorf("ctxGlobalRoles = %v, want [support]", gotRoles)
	}
}

func TestRequireAuthenticated_JWT_WrongSecret_401(t *testing.T) {
	t.Parallel()
	token, err := auth.IssueAccessToken([]byte("othersecret"), uuid.New(), nil, 1, 15*time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	srv := newAuthTestServer(t, "testsecret", nil)
	handler := srv.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong-secret JWT: got %d, want 401", resp.StatusCode)
	}
}

func TestRequireAuthenticated_JWT_Expired_401(t *testing.T) {
	t.Parallel()
	token, err := auth.IssueAccessToken([]byte("testsecret"), uuid.New(), nil, 1, -1*time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	srv := newAuthTestServer(t, "testsecret", nil)
	handler := srv.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expired JWT: got %d, want 401", resp.StatusCode)
	}
}

func TestRequireAuthenticated_APIKey_Valid(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, err := db.CreateUser(ctx, "key_owner@example.com", "KeyOwner", "", 0)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	org, err := db.CreateOrgWithOwner(ctx, "KeyOrg", owner.ID)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	rawKey, keyHash, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	if _, err := db.CreateAPIKey(ctx, org.ID, owner.ID, keyHash, "test", "member", nil); err != nil {
		t.Fatalf("create api key: %v", err)
	}

	srv := newAuthTestServer(t, "testsecret", db)
	var gotUserID uuid.UUID
	var gotKeyRole string
	handler := srv.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID, _ = r.Context().Value(ctxUserID).(uuid.UUID)
		gotKeyRole, _ = r.Context().Value(ctxAPIKeyRole).(string)
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid api key: got %d, want 200", resp.StatusCode)
	}
	if gotUserID != owner.ID {
		t.Errorf("ctxUserID = %v, want %v", gotUserID, owner.ID)
	}
	if gotKeyRole != "member" {
		t.Errorf("ctxAPIKeyRole = %v, want member", gotKeyRole)
	}
}

func TestRequireAuthenticated_APIKey_Expired_401(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	owner, err := db.CreateUser(ctx, "expkey_owner@example.com", "KeyOwner", "", 0)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	org, err := db.CreateOrgWithOwner(ctx, "ExpKeyOrg", owner.ID)
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	rawKey, keyHash, err := auth.GenerateAPIKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	past := time.Now().Add(-1 * time.Hour)
	if _, err := db.CreateAPIKey(ctx, org.ID, owner.ID, keyHash, "expired", "member", &past); err != nil {
		t.Fatalf("create api key: %v", err)
	}

	srv := newAuthTestServer(t, "testsecret", db)
	handler := srv.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	resp, err := ts.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expired api key: got %d, want 401", resp.StatusCode)
	}
}

func TestParseGlobalRoles_DropsUnknown(t *testing.T) {
	t.Parallel()
	got := parseGlobalRoles([]string{"support", "bogus", "auditor"})
	if len(got) != 2 || got[0] != authz.GlobalSupport || got[1] != authz.GlobalAuditor {
		t.Errorf("parseGlobalRoles = %v, want [support auditor]", got)
	}
}
