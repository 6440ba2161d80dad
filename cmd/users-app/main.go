// main is the entry point of the users application.
//
// STARTUP SEQUENCE:
//  1. Load configuration from a YAML file (plus .env and env overrides)
//  2. Initialise the logger
//  3. Open the configured record store (SQLite or Postgres)
//  4. Start the session store and its expiry sweeper
//  5. Parse the embedded templates and register all HTTP routes
//  6. Start the HTTP server in a separate goroutine
//  7. Block until an OS signal arrives, then shut down gracefully
//
// RUNNING THE SERVER:
//
//	go run ./cmd/users-app --config=config/local.yaml
//
// or (with the environment variable):
//
//	CONFIG_PATH=config/local.yaml go run ./cmd/users-app
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/multierr"

	"github.com/chirva-sf/example-php-js/internal/config"
	"github.com/chirva-sf/example-php-js/internal/http/router"
	"github.com/chirva-sf/example-php-js/internal/session"
	"github.com/chirva-sf/example-php-js/internal/storage"
	"github.com/chirva-sf/example-php-js/internal/storage/postgres"
	"github.com/chirva-sf/example-php-js/internal/storage/sqlite"
	"github.com/chirva-sf/example-php-js/web"
)

const (
	version         = "1.0.0"
	cleanupInterval = time.Minute
)

func main() {
	// ── 1. Load Config ────────────────────────────────────────────────────
	cfg := config.MustLoad()

	// ── 2. Initialise Logger ──────────────────────────────────────────────
	// Handlers log through the package-level slog functions, so the
	// configured logger also becomes the default.
	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	log.Info("starting users-app",
		slog.String("env", cfg.Env),
		slog.String("version", version),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	// ── 3. Initialise Storage ─────────────────────────────────────────────
	store, err := newStorage(ctx, cfg, clock)
	if err != nil {
		log.Error("failed to initialise storage",
			slog.String("driver", cfg.Storage.Driver),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("storage initialised",
		slog.String("driver", cfg.Storage.Driver),
		slog.String("timezone", cfg.Storage.Timezone))

	// ── 4. Sessions ───────────────────────────────────────────────────────
	sessions := session.NewManager(cfg.Session, clock)
	go sessions.RunCleanup(ctx, cleanupInterval)

	// ── 5. Templates and Routes ───────────────────────────────────────────
	tmpl, err := web.Templates()
	if err != nil {
		log.Error("failed to parse templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router.New(log, store, sessions, tmpl, web.Static()),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// ── 6. Start Server in a Goroutine ────────────────────────────────────
	serveErr := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("address", cfg.Addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── 7. Wait for Shutdown ──────────────────────────────────────────────
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping server...")
	case err := <-serveErr:
		if err != nil {
			log.Error("server encountered an error", slog.String("error", err.Error()))
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// The store is closed even when the server misses its deadline.
	if err := multierr.Combine(server.Shutdown(shutdownCtx), store.Close()); err != nil {
		log.Error("failed to shutdown gracefully", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("server stopped gracefully")
}

// newStorage opens the store named by cfg.Storage.Driver.
func newStorage(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		if cfg.Storage.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
				return nil, fmt.Errorf("create storage directory: %w", err)
			}
		}
		return sqlite.New(cfg, clock)
	case config.DriverPostgres:
		return postgres.New(ctx, cfg, clock)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// setupLogger returns a *slog.Logger configured for the given environment.
//
// Development (dev): human-readable text output at DEBUG level.
// Production (prod): machine-readable JSON output at INFO level.
func setupLogger(env string) *slog.Logger {
	switch env {
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	case "staging":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default: // "dev" and anything unrecognised
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}
}
