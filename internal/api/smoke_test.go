// ABOUTME: Coarse integration test: real Postgres, full handler, /healthz and /metrics.
// ABOUTME: If this passes, router wiring, DB pool, and Prometheus handler are operational.
package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/api"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/config"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/testutil"
)

func TestSmokeHealthz(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := testutil.NewTestDB(t)

	cfg := &config.Config{JWTSecret: "smokesecret", Argon2MaxConcurrent: 5} //nolint:exhaustruct
	apiSrv, err := api.NewServer(ctx, db.Store, cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv := httptest.NewServer(apiSrv.Handler())
	t.Cleanup(srv.Close)

	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request /healthz: %v", err)
	}
	resp, err := srv.Client().Do(hReq) //nolint:gosec // G704 false positive: srv.URL is httptest.Server, not user input
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz: got status %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Status            string `json:"status"`
		PolicyFingerprint string `json:"policy_fingerprint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /healthz body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("GET /healthz: got status %q, want %q", body.Status, "ok")
	}
	if len(body.PolicyFingerprint) != 64 {
		t.Errorf("GET /healthz: policy_fingerprint %q, want 64 hex chars", body.PolicyFingerprint)
	}

	mReq, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request /metrics: %v", err)
	}
	mResp, err := srv.Client().Do(mReq) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer mResp.Body.Close() //nolint:errcheck

	if mResp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics: got status %d, want %d", mResp.StatusCode, http.StatusOK)
	}
}

// TestSmokeHealthzDegraded verifies that /healthz returns 503 when the DB pool
// is nil (simulating an unavailable database).
func TestSmokeHealthzDegraded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := &config.Config{JWTSecret: "smokesecret", Argon2MaxConcurrent: 5} //nolint:exhaustruct
	apiSrv, err := api.NewServer(ctx, nil, cfg)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	srv := httptest.NewServer(apiSrv.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request /healthz: %v", err)
	}
	resp, err := srv.Client().Do(req) //nolint:gosec // G704 false positive
	if err != nil {
		t.Fatalf("GET /healthz (nil db): %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("GET /healthz (nil db): got status %d, want %d",
			resp.StatusCode, http.StatusServiceUnavailable)
	}

	var body struct {
		Status string `json:"status"`
		DB     string `json:"db"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /healthz body: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("GET /healthz (nil db): got status %q, want %q", body.Status, "degraded")
	}
	if body.DB != "unavailable" {
		t.Errorf("GET /healthz (nil db): got db %q, want %q", body.DB, "unavailable")
	}
}
