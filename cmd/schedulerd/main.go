// schedulerd serves the recurring-jobs API and keeps the system crontab
// consistent with the declared job graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miem-project-2259/openvair/internal/api"
	"github.com/miem-project-2259/openvair/internal/config"
	"github.com/miem-project-2259/openvair/pkg/cronjob"
	"github.com/miem-project-2259/openvair/pkg/cronjob/postgres"
	"github.com/miem-project-2259/openvair/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("schedulerd failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewWithSentry(logger.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
	}, logger.RequestID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repo, cleanup, err := openRepository(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	backend, err := cronjob.OpenBackend(cronjob.BackendKind(cfg.Backend), cronjob.BackendContext{
		User:   cfg.CrontabUser,
		Logger: log,
	})
	if err != nil {
		return err
	}

	mgr, err := cronjob.NewManager(repo, backend,
		cronjob.WithLogger(log),
		cronjob.WithResolver(cronjob.NewResolver(
			cronjob.WithStateDir(cfg.StateDir),
			cronjob.WithGuardWait(cfg.GuardWait),
		)),
	)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewHandler(mgr, log).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("scheduler API listening", slog.String("address", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

func openRepository(ctx context.Context, cfg config.Config, log *slog.Logger) (cronjob.Repository, func(), error) {
	switch cfg.Storage {
	case "memory":
		return cronjob.NewMemoryRepository(), func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := postgres.Migrate(ctx, pool, log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return postgres.NewRepository(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage)
	}
}
