package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

// runnerJobRepo is the slice of the job repository the runner needs to make
// page progress durable and to observe cancellation.
type runnerJobRepo interface {
	LoadStepStates(ctx context.Context, jobID string) (map[string]domain.StepState, error)
	SaveStepState(ctx context.Context, jobID, stepName string, execCtx domain.StepExecutionContext, completed bool) error
	Heartbeat(ctx context.Context, jobID string, lease time.Duration) error
	CancelRequested(ctx context.Context, jobID string) (bool, error)
}

// Runner drives the registered steps for one job across all their pages.
// Steps run one page at a time; a step becomes eligible once every declared
// dependency has reached its terminal page. The returned context of each
// page is persisted before the runner moves on, so a crash between pages
// loses at most one page of work.
type Runner struct {
	steps  []domain.Step
	jobs   runnerJobRepo
	store  domain.MappingStore
	cache  *Lookup
	lease  time.Duration
	logger *slog.Logger
}

func NewRunner(steps []domain.Step, jobs runnerJobRepo, store domain.MappingStore, cache *Lookup, lease time.Duration, logger *slog.Logger) *Runner {
	return &Runner{
		steps:  steps,
		jobs:   jobs,
		store:  store,
		cache:  cache,
		lease:  lease,
		logger: logger,
	}
}

// Run executes pages until every step is complete, cancellation is
// requested (reported as ErrJobCancelled), or a page fails. On failure the
// failing step's context is left untouched, so the next attempt re-runs
// the identical page.
func (r *Runner) Run(ctx context.Context, jobCtx domain.JobContext) error {
	jobID := jobCtx.Job.ID
	log := r.logger.With("job_id", jobID)

	states, err := r.jobs.LoadStepStates(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load step states: %w", err)
	}
	if states == nil {
		states = make(map[string]domain.StepState)
	}

	completed := make(map[string]bool, len(states))
	for name, st := range states {
		if st.Completed {
			completed[name] = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cancelled, err := r.jobs.CancelRequested(ctx, jobID)
		if err != nil {
			return fmt.Errorf("check cancellation: %w", err)
		}
		if cancelled {
			log.Info("job cancelled, stopping between pages")
			return domain.ErrJobCancelled
		}

		step := r.nextStep(completed)
		if step == nil {
			if len(completed) == len(r.steps) {
				r.cache.Flush(jobID)
				log.Info("all steps complete")
				return nil
			}
			return fmt.Errorf("%w: %d steps remain with unmet dependencies", domain.ErrStepDependency, len(r.steps)-len(completed))
		}

		depData, err := r.loadDependencies(ctx, jobID, step, log)
		if err != nil {
			return err
		}

		var prev *domain.StepExecutionContext
		if st, ok := states[step.Name()]; ok {
			c := st.Context
			prev = &c
		}

		execCtx, err := step.Execute(ctx, domain.StepInput{
			Job:            jobCtx,
			Storage:        r.store,
			Previous:       prev,
			DependencyData: depData,
		})
		if err != nil {
			return fmt.Errorf("step %s: %w", step.Name(), err)
		}

		done := !execCtx.Page.HasMore
		if err := r.jobs.SaveStepState(ctx, jobID, step.Name(), execCtx, done); err != nil {
			return fmt.Errorf("save step state: %w", err)
		}
		states[step.Name()] = domain.StepState{Context: execCtx, Completed: done}

		if done {
			completed[step.Name()] = true
			log.Info("step complete", "step", step.Name(), "total_processed", execCtx.Page.TotalProcessed)
		} else {
			log.Info("step has more pages", "step", step.Name(), "total_processed", execCtx.Page.TotalProcessed)
		}

		if err := r.jobs.Heartbeat(ctx, jobID, r.lease); err != nil {
			return fmt.Errorf("heartbeat: %w", err)
		}
	}
}

// nextStep picks the first registered step that is not complete and whose
// dependencies all are. Registration order breaks ties, keeping runs
// deterministic.
func (r *Runner) nextStep(completed map[string]bool) domain.Step {
	for _, s := range r.steps {
		if completed[s.Name()] {
			continue
		}
		eligible := true
		for _, dep := range s.Dependencies() {
			if !completed[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			return s
		}
	}
	return nil
}

func (r *Runner) loadDependencies(ctx context.Context, jobID string, step domain.Step, log *slog.Logger) (map[string][]map[string]any, error) {
	deps := step.Dependencies()
	if len(deps) == 0 {
		return nil, nil
	}

	out := make(map[string][]map[string]any, len(deps))
	for _, dep := range deps {
		records, err := r.store.GetData(ctx, jobID, dep)
		if err != nil {
			return nil, fmt.Errorf("load dependency data for %s: %w", dep, err)
		}
		if len(records) == 0 {
			log.Warn("dependency snapshot is empty", "step", step.Name(), "dependency", dep)
			continue
		}
		out[dep] = records
	}
	return out, nil
}
