// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/membership-registry/internal/access"
	"github.com/Shivanand-hulikatti/membership-registry/internal/config"
	"github.com/Shivanand-hulikatti/membership-registry/internal/database"
	"github.com/Shivanand-hulikatti/membership-registry/internal/handler"
	"github.com/Shivanand-hulikatti/membership-registry/internal/logging"
	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
	"github.com/Shivanand-hulikatti/membership-registry/internal/notify"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository/memory"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/membership-registry/internal/repository/sqlite"
	"github.com/Shivanand-hulikatti/membership-registry/internal/service"
	"github.com/Shivanand-hulikatti/membership-registry/internal/treasury"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("registry stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	// ── 1. Open the store ─────────────────────────────────────────────────
	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	// ── 2. Wire up layers ────────────────────────────────────────────────
	gate, err := access.NewGate(model.Identity(cfg.Owner))
	if err != nil {
		return fmt.Errorf("access gate: %w", err)
	}
	refusing := make([]model.Identity, 0, len(cfg.TreasuryRefusing))
	for _, id := range cfg.TreasuryRefusing {
		refusing = append(refusing, model.Identity(id))
	}
	funds := treasury.New(refusing...)

	publishers := notify.Multi{notify.NewLogPublisher(log)}
	if cfg.AMQP.URL != "" {
		rabbit, err := notify.NewRabbitPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			return err
		}
		defer rabbit.Close()
		publishers = append(publishers, rabbit)
	}

	registry := service.New(store, gate, funds,
		service.WithLogger(log),
		service.WithPublisher(publishers),
		service.WithMembershipPeriod(cfg.MembershipPeriod),
	)
	h := handler.New(registry, log)

	// ── 3. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("owner", cfg.Owner).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := database.NewPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigratePostgres(ctx, pool, postgres.Migrations, "migrations"); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return postgres.New(pool), nil

	case config.DriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		if err := database.MigrateSQLite(ctx, db, sqlite.Migrations, "migrations"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		return sqlite.New(db), nil

	default:
		return memory.New(), nil
	}
}
