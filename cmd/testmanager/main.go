// ABOUTME: Entry point for the testmanager binary with serve, worker, and migrate subcommands.
// ABOUTME: serve runs the HTTP API with an embedded job worker; worker runs the worker alone.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/api"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/authz"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/config"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/mail"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/store"
	"github.com/JonathanLopez0327/my-test-manager-sub000/internal/worker"
	"github.com/JonathanLopez0327/my-test-manager-sub000/migrations"
)

// expectedSchemaVersion is the migration version the code was written against.
// Bump it whenever a new migration is added.
const expectedSchemaVersion = 6

func main() {
	rootCmd := &cobra.Command{
		Use:           "testmanager",
		Short:         "Test management service",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	rootCmd.AddCommand(serveCmd(), workerCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server with an embedded job worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool)

	wp := worker.New(st)
	wp.Register(api.InviteEmailQueue, inviteEmailHandler(cfg, st))
	go wp.Run(ctx)

	srv, err := api.NewServer(ctx, st, cfg)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	if fp, err := authz.Fingerprint(); err == nil {
		logger.Info("policy fingerprint", "sha256", fp)
	} else {
		logger.Error("policy fingerprint", "error", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: report exports can legitimately take a while.
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr, "env", cfg.AppEnv)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout_seconds", cfg.ShutdownTimeoutSeconds)
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background job worker without the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pool, err := newPool(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer pool.Close()

			st := store.New(pool)
			wp := worker.New(st)
			wp.Register(api.InviteEmailQueue, inviteEmailHandler(cfg, st))

			logger.Info("worker started")
			wp.Run(ctx)
			logger.Info("worker stopped")
			return nil
		},
	}
}

// inviteEmailHandler builds the job handler that delivers invitation emails.
func inviteEmailHandler(cfg *config.Config, _ *store.Store) worker.Handler {
	sender := mail.NewSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		TLS:      cfg.SMTPTLS,
	})
	return func(ctx context.Context, payload json.RawMessage) error {
		var p api.InviteEmailPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode invite payload: %w", err)
		}
		return sender.SendInvite(ctx, p.Recipient, p.OrgName, p.InviterEmail, p.AcceptURL)
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg)
			slog.SetDefault(logger)

			src, err := iofs.New(migrations.FS, ".")
			if err != nil {
				return fmt.Errorf("open migration source: %w", err)
			}

			poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("parse database url: %w", err)
			}
			db := stdlib.OpenDB(*poolCfg.ConnConfig)
			defer db.Close()

			driver, err := migratepg.WithInstance(db, &migratepg.Config{MultiStatementEnabled: true})
			if err != nil {
				return fmt.Errorf("init migration driver: %w", err)
			}
			m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
			if err != nil {
				return fmt.Errorf("init migrator: %w", err)
			}

			if err := m.Up(); err != nil {
				if errors.Is(err, migrate.ErrNoChange) {
					logger.Info("schema already up to date")
					return nil
				}
				return fmt.Errorf("apply migrations: %w", err)
			}
			version, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			logger.Info("migrations applied", "version", version, "dirty", dirty)
			return nil
		},
	}
}

// newPool connects to Postgres with a short retry loop so the service survives
// the database starting a few seconds after it under docker compose.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MaxConnIdleTime = cfg.DBMaxConnIdleTime
	poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.DBStatementTimeoutMS)

	var pool *pgxpool.Pool
	for attempt := 1; ; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			err = pool.Ping(ctx)
			if err == nil {
				break
			}
			pool.Close()
		}
		if attempt >= 10 {
			return nil, fmt.Errorf("database unreachable after %d attempts: %w", attempt, err)
		}
		slog.Warn("database not ready, retrying", "attempt", attempt, "error", err)
		timer := time.NewTimer(time.Duration(attempt) * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	// Warn when the pool could exhaust the server's connection slots.
	var maxConns string
	if err := pool.QueryRow(ctx, "SHOW max_connections").Scan(&maxConns); err == nil {
		var serverMax int
		if _, err := fmt.Sscanf(maxConns, "%d", &serverMax); err == nil && serverMax > 0 {
			if int(poolCfg.MaxConns) > serverMax*80/100 {
				slog.Warn("pool max_conns exceeds 80% of server max_connections",
					"pool_max", poolCfg.MaxConns, "server_max", serverMax)
			}
		}
	}

	// Refuse to run against a schema the code was not written for.
	var version int
	var dirty bool
	err = pool.QueryRow(ctx, "SELECT version, dirty FROM schema_migrations").Scan(&version, &dirty)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("read schema version (run 'testmanager migrate' first): %w", err)
	}
	if dirty {
		pool.Close()
		return nil, fmt.Errorf("schema is dirty at version %d; repair before starting", version)
	}
	if version != expectedSchemaVersion {
		pool.Close()
		return nil, fmt.Errorf("schema version %d does not match expected %d; run 'testmanager migrate'",
			version, expectedSchemaVersion)
	}

	return pool, nil
}

// newLogger builds the process-wide slog logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" || cfg.IsDevelopment() {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
