// ABOUTME: HTTP server struct, constructor, and handler wiring for Test Manager.
// ABOUTME: Holds auth, authz engine, and job queue dependencies used by handlers.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/time/rate"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/config"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/store"
)

// Server holds the dependencies for the HTTP layer.
type Server struct {
	store        *store.Store
	cfg          *config.Config
	engine       *authz.Engine
	argon2Sem    chan struct{}
	rateLimiter  *ipRateLimiter
	ghOAuth      *oauth2.Config  // nil when GitHub OAuth is not configured
	ghAPIBaseURL string          // GitHub REST API base URL; overridable in tests
	googleOAuth  *oauth2.Config  // nil when Google OIDC is not configured
	googleOIDC   *oidc.Provider  // nil when Google OIDC is not configured
}

// NewServer creates a Server. Returns an error if Google OIDC discovery fails.
// GitHub OAuth and Google OIDC are each skipped when their client ID is empty.
func NewServer(ctx context.Context, s *store.Store, cfg *config.Config) (*Server, error) {
	sem := make(chan struct{}, cfg.Argon2MaxConcurrent)
	evictTTL := cfg.RateLimitEvictTTL
	if evictTTL == 0 {
		evictTTL = 15 * time.Minute
	}
	// 10 requests per minute, burst of 10.
	rl := newIPRateLimiter(rate.Limit(10.0/60), 10, evictTTL)
	srv := &Server{
		store:        s,
		cfg:          cfg,
		engine:       authz.NewEngine(s),
		argon2Sem:    sem,
		rateLimiter:  rl,
		ghAPIBaseURL: "https://api.github.com",
	}

	if cfg.GitHubClientID != "" {
		srv.ghOAuth = &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.ExternalURL + "/api/v1/auth/oauth/github/callback",
			Endpoint:     github.Endpoint,
			Scopes:       []string{"user:email"},
		}
	}

	if cfg.GoogleClientID != "" {
		provider, err := oidc.NewProvider(ctx, "https://accounts.google.com")
		if err != nil {
			return nil, err
		}
		srv.googleOIDC = provider
		srv.googleOAuth = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.ExternalURL + "/api/v1/auth/oauth/google/callback",
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		}
	}

	return srv, nil
}

// Handler builds and returns the http.Handler.
func (srv *Server) Handler() http.Handler {
	var db *pgxpool.Pool
	if srv.store != nil {
		db = srv.store.Pool()
	}
	r := chi.NewRouter()

	// Security headers go first so they appear on every response including errors.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// 1 MB global body limit guards against OOM from oversized request bodies.
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)

	// ── Infrastructure endpoints ──────────────────────────────────────────────
	r.Get("/healthz", healthzHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	// ── API v1 sub-router with huma (OpenAPI 3.1) ────────────────────────────
	apiRouter := chi.NewRouter()
	apiRouter.Use(csrfProtect)
	humaConfig := huma.DefaultConfig("Test Manager API", "0.1.0")
	humaConfig.Info.Description = "Test management and bug tracking API"
	humaAPI := humachi.New(apiRouter, humaConfig)
	registerAuthRoutes(humaAPI, srv)

	// ── OAuth routes (chi, not huma — redirects, not JSON API calls) ─────────
	apiRouter.Group(func(r chi.Router) {
		r.Use(srv.authRateLimit())
		r.Get("/auth/oauth/github", srv.githubInitHandler)
		r.Get("/auth/oauth/github/callback", srv.githubCallbackHandler)
		r.Get("/auth/oauth/google", srv.googleInitHandler)
		r.Get("/auth/oauth/google/callback", srv.googleCallbackHandler)
	})

	// ── Org and project routes (chi, for per-route permission guards) ────────
	apiRouter.Route("/orgs", func(r chi.Router) {
		r.Use(srv.RequireAuthenticated())
		r.Post("/", srv.createOrgHandler)

		r.Route("/{org_id}", func(r chi.Router) {
			r.Use(srv.withOrgPolicy())

			// Org view rides on org-member:list; org rename on org-member:update.
			// The registry has no standalone org resource — every org read or
			// write is member administration in practice.
			r.With(srv.requirePermission(authz.OrgMemberList)).Get("/", srv.getOrgHandler)
			r.With(srv.requirePermission(authz.OrgMemberUpdate)).Patch("/", srv.updateOrgHandler)

			r.Route("/members", func(r chi.Router) {
				r.With(srv.requirePermission(authz.OrgMemberList)).Get("/", srv.listMembersHandler)
				r.With(srv.requirePermission(authz.OrgMemberUpdate)).Patch("/{user_id}", srv.updateMemberRoleHandler)
				r.With(srv.requirePermission(authz.OrgMemberDelete)).Delete("/{user_id}", srv.removeMemberHandler)
			})

			r.Route("/invitations", func(r chi.Router) {
				r.With(srv.requirePermission(authz.OrgMemberUpdate)).Post("/", srv.createInvitationHandler)
				r.With(srv.requirePermission(authz.OrgMemberList)).Get("/", srv.listInvitationsHandler)
				r.With(srv.requirePermission(authz.OrgMemberDelete)).Delete("/{id}", srv.cancelInvitationHandler)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.With(srv.requirePermission(authz.APIKeyCreate)).Post("/", srv.createAPIKeyHandler)
				r.With(srv.requirePermission(authz.APIKeyList)).Get("/", srv.listAPIKeysHandler)
				r.With(srv.requirePermission(authz.APIKeyDelete)).Delete("/{id}", srv.revokeAPIKeyHandler)
			})

			r.Route("/projects", func(r chi.Router) {
				r.With(srv.requirePermission(authz.ProjectList)).Get("/", srv.listProjectsHandler)
				r.With(srv.requirePermission(authz.ProjectCreate)).Post("/", srv.createProjectHandler)

				r.Route("/{project_id}", func(r chi.Router) {
					r.Use(srv.withProjectScope())

					r.With(srv.requirePermission(authz.ProjectView)).Get("/", srv.getProjectHandler)
					r.Patch("/", srv.updateProjectHandler)
					r.Delete("/", srv.deleteProjectHandler)

					r.Route("/members", func(r chi.Router) {
						r.With(srv.requirePermission(authz.ProjectView)).Get("/", srv.listProjectMembersHandler)
						r.With(srv.requirePermission(authz.ProjectUpdate)).Put("/{user_id}", srv.upsertProjectMemberHandler)
						r.With(srv.requirePermission(authz.ProjectUpdate)).Delete("/{user_id}", srv.removeProjectMemberHandler)
					})

					r.Route("/test-plans", func(r chi.Router) {
						r.With(srv.requirePermission(authz.TestPlanList)).Get("/", srv.listTestPlansHandler)
						r.With(srv.requirePermission(authz.TestPlanCreate)).Post("/", srv.createTestPlanHandler)
						r.With(srv.requirePermission(authz.TestPlanView)).Get("/{plan_id}", srv.getTestPlanHandler)
						r.With(srv.requirePermission(authz.TestCaseList)).Get("/{plan_id}/test-cases", srv.listTestCasesHandler)
					})

					r.Route("/test-cases", func(r chi.Router) {
						r.With(srv.requirePermission(authz.TestCaseCreate)).Post("/", srv.createTestCaseHandler)
						r.With(srv.requirePermission(authz.TestCaseView)).Get("/{case_id}", srv.getTestCaseHandler)
					})

					r.Route("/test-runs", func(r chi.Router) {
						r.With(srv.requirePermission(authz.TestRunList)).Get("/", srv.listTestRunsHandler)
						r.With(srv.requirePermission(authz.TestRunCreate)).Post("/", srv.createTestRunHandler)
						r.Get("/{run_id}", srv.getTestRunHandler)
						r.Patch("/{run_id}", srv.updateTestRunHandler)
						r.Delete("/{run_id}", srv.deleteTestRunHandler)
					})

					r.Route("/bugs", func(r chi.Router) {
						r.With(srv.requirePermission(authz.BugList)).Get("/", srv.listBugsHandler)
						r.With(srv.requirePermission(authz.BugCreate)).Post("/", srv.createBugHandler)
						r.Get("/{bug_id}", srv.getBugHandler)
						r.Patch("/{bug_id}", srv.updateBugHandler)
						r.Delete("/{bug_id}", srv.deleteBugHandler)
					})
				})
			})
		})
	})

	r.Mount("/api/v1", apiRouter)

	return r
}

// acquireArgon2 tries to acquire the argon2 semaphore. Returns false if all
// slots are in use — the caller should return 503 immediately (do NOT block).
func (srv *Server) acquireArgon2() bool {
	select {
	case srv.argon2Sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (srv *Server) releaseArgon2() { <-srv.argon2Sem }

// healthResponse is the JSON body for /healthz. PolicyFingerprint is the
// canonical hash of the role permission tables, so operators can spot
// instances running divergent policy builds.
type healthResponse struct {
	Status            string `json:"status"`
	DB                string `json:"db,omitempty"`
	PolicyFingerprint string `json:"policy_fingerprint,omitempty"`
}

// healthzHandler returns 200 {"status":"ok"} when the DB is reachable,
// or 503 {"status":"degraded","db":"unavailable"} when it is not.
func healthzHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		statusCode := http.StatusOK

		if db == nil {
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		} else if err := db.Ping(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "healthz: db ping failed", "error", err)
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}

		if fp, err := authz.Fingerprint(); err == nil {
			resp.PolicyFingerprint = fp
		} else {
			slog.ErrorContext(r.Context(), "healthz: policy fingerprint", "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.ErrorContext(r.Context(), "healthz: failed to encode response", "error", err)
		}
	}
}
