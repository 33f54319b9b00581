package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

const claimRetryMaxElapsed = 30 * time.Second

// ClientFactory builds the source and target clients for one claimed job
// from its config. Concrete client construction (base URLs, credentials)
// lives outside this module.
type ClientFactory interface {
	Clients(ctx context.Context, job domain.MigrationJob) (domain.SourceClient, domain.TargetClient, error)
}

type workerJobRepo interface {
	ClaimNext(ctx context.Context, lease time.Duration) (*domain.MigrationJob, error)
	PinResourceID(ctx context.Context, jobID, resourceID string) (string, error)
	Complete(ctx context.Context, jobID string) error
	MarkCancelled(ctx context.Context, jobID string) error
	Requeue(ctx context.Context, jobID, reason string) error
	Fail(ctx context.Context, jobID, reason string) error
}

type WorkerConfig struct {
	Workers       int
	PollInterval  time.Duration
	LeaseDuration time.Duration
}

// Worker polls for claimable migration jobs and drives the runner for each
// claim. A job whose lease expires (worker crash, long stall) becomes
// claimable again; the persisted step states make the re-run resume at the
// last durable page.
type Worker struct {
	repo    workerJobRepo
	runner  *Runner
	clients ClientFactory
	flags   domain.FeatureFlagLookup
	cfg     WorkerConfig
	logger  *slog.Logger

	once sync.Once
}

func NewWorker(repo workerJobRepo, runner *Runner, clients ClientFactory, flags domain.FeatureFlagLookup, cfg WorkerConfig, logger *slog.Logger) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 60 * time.Second
	}

	return &Worker{
		repo:    repo,
		runner:  runner,
		clients: clients,
		flags:   flags,
		cfg:     cfg,
		logger:  logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.once.Do(func() {
		for i := 0; i < w.cfg.Workers; i++ {
			go w.workerLoop(ctx)
		}
	})
}

func (w *Worker) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.claimNext(ctx)
		if err != nil {
			w.logger.Error("claim migration job failed", "error", err)
			if !sleepWithContext(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		if job == nil {
			if !sleepWithContext(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		if err := w.ProcessJob(ctx, *job); err != nil {
			w.logger.Error("process migration job failed", "job_id", job.ID, "error", err)
		}
	}
}

// claimNext retries transient claim failures with exponential backoff
// before giving up for this poll cycle.
func (w *Worker) claimNext(ctx context.Context) (*domain.MigrationJob, error) {
	var job *domain.MigrationJob

	// BackOff implementations are stateful; always use a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = claimRetryMaxElapsed

	err := backoff.Retry(func() error {
		claimed, err := w.repo.ClaimNext(ctx, w.cfg.LeaseDuration)
		if err != nil {
			return err
		}
		job = claimed
		return nil
	}, backoff.WithContext(bo, ctx))

	return job, err
}

// ProcessJob runs one claimed job to completion, requeue, or failure.
func (w *Worker) ProcessJob(ctx context.Context, job domain.MigrationJob) error {
	// Pin the resource id before any step runs so transforms stay
	// deterministic across pages and retries. The repository returns the
	// authoritative id: if a racing claimer pinned first, its id wins.
	if job.Config.ResourceID == "" {
		pinned, err := w.repo.PinResourceID(ctx, job.ID, uuid.NewString())
		if err != nil {
			return w.onProcessingError(ctx, job, fmt.Errorf("pin resource id: %w", err))
		}
		job.Config.ResourceID = pinned
	}

	source, target, err := w.clients.Clients(ctx, job)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSource) {
			return w.failJob(ctx, job, err)
		}
		return w.onProcessingError(ctx, job, fmt.Errorf("build job clients: %w", err))
	}

	jobCtx := domain.JobContext{
		Job:    job,
		Source: source,
		Target: target,
		Flags:  w.flags,
	}

	if err := w.runner.Run(ctx, jobCtx); err != nil {
		if errors.Is(err, domain.ErrJobCancelled) {
			if markErr := w.repo.MarkCancelled(ctx, job.ID); markErr != nil {
				return fmt.Errorf("mark job cancelled: %w", markErr)
			}
			return nil
		}
		if isFatal(err) {
			return w.failJob(ctx, job, err)
		}
		return w.onProcessingError(ctx, job, err)
	}

	if err := w.repo.Complete(ctx, job.ID); err != nil {
		return w.onProcessingError(ctx, job, fmt.Errorf("complete job: %w", err))
	}

	return nil
}

// isFatal reports configuration errors that retrying cannot fix.
func isFatal(err error) bool {
	return errors.Is(err, domain.ErrMissingSourceProject) ||
		errors.Is(err, domain.ErrUnknownSource) ||
		errors.Is(err, domain.ErrStepDependency)
}

func (w *Worker) failJob(ctx context.Context, job domain.MigrationJob, err error) error {
	reason := truncateReason(err.Error())
	if failErr := w.repo.Fail(ctx, job.ID, reason); failErr != nil {
		return fmt.Errorf("%v; fail update failed: %w", err, failErr)
	}
	return err
}

func (w *Worker) onProcessingError(ctx context.Context, job domain.MigrationJob, err error) error {
	reason := truncateReason(err.Error())
	if job.Attempts < job.MaxAttempts {
		if requeueErr := w.repo.Requeue(ctx, job.ID, reason); requeueErr != nil {
			return fmt.Errorf("%v; requeue failed: %w", err, requeueErr)
		}
		return err
	}

	if failErr := w.repo.Fail(ctx, job.ID, reason); failErr != nil {
		return fmt.Errorf("%v; fail update failed: %w", err, failErr)
	}
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func truncateReason(reason string) string {
	const maxLen = 1000
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
