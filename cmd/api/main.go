package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	app "github.com/trackerlabs/migrate/internal/application/migration"
	"github.com/trackerlabs/migrate/internal/bootstrap"
	domain "github.com/trackerlabs/migrate/internal/domain/migration"
	"github.com/trackerlabs/migrate/internal/infrastructure/clients"
	"github.com/trackerlabs/migrate/internal/infrastructure/featureflags"
	"github.com/trackerlabs/migrate/internal/infrastructure/repository"
)

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		log.Fatalf("failed to create pgx pool: %v", err)
	}
	defer pool.Close()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	server := bootstrap.NewHTTPServer(db)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	jobRepo := repository.NewMigrationJobRepository(db)
	mappingRepo := repository.NewMappingRepository(pool)
	cache := app.NewLookup()

	lease := time.Duration(parseIntEnv("MIGRATE_JOB_LEASE_SECONDS", 60)) * time.Second

	steps := []domain.Step{
		app.NewIssueTypesStep(cache, logger),
		app.NewMembersStep(cache, logger),
	}
	runner := app.NewRunner(steps, jobRepo, mappingRepo, cache, lease, logger)

	// Per-source client factories are registered by the deployment; an
	// empty dispatcher fails jobs for any source with a clear error.
	dispatcher := clients.NewDispatcher(nil)
	flags := featureflags.Static{Default: true}

	worker := app.NewWorker(jobRepo, runner, dispatcher, flags, app.WorkerConfig{
		Workers:       parseWorkerCount(),
		PollInterval:  time.Duration(parseIntEnv("MIGRATE_POLL_INTERVAL_MS", 500)) * time.Millisecond,
		LeaseDuration: lease,
	}, logger)
	worker.Start(workerCtx)

	go func() {
		if err := server.Start(":" + port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("graceful shutdown failed: %v", err)
	}
}

func parseWorkerCount() int {
	workers := parseIntEnv("MIGRATE_WORKERS", 2)
	if workers <= 0 {
		return 2
	}
	if workers > 8 {
		return 8
	}
	return workers
}

func parseIntEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
