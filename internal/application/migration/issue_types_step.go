package migration

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

const issueTypesPageSize = 50

// Memoized lookup keys used by the issue types step.
const (
	lookupKeyTypesFlag     = "work_item_types_flag"
	lookupKeyProjectConfig = "project_configuration"
	lookupKeyExistingTypes = "existing_work_item_types"
)

// IssueTypesStep migrates the source system's issue types into the target
// project's work item types, one page at a time. Epic and default types are
// singletons on the target and are reconciled rather than duplicated.
type IssueTypesStep struct {
	cache  *Lookup
	logger *slog.Logger
}

func NewIssueTypesStep(cache *Lookup, logger *slog.Logger) *IssueTypesStep {
	return &IssueTypesStep{cache: cache, logger: logger}
}

func (s *IssueTypesStep) Name() string { return domain.StepIssueTypes }

func (s *IssueTypesStep) Dependencies() []string { return nil }

func (s *IssueTypesStep) Execute(ctx context.Context, in domain.StepInput) (domain.StepExecutionContext, error) {
	job := in.Job.Job
	log := s.logger.With("job_id", job.ID, "step", s.Name())

	enabled, err := s.shouldExecute(ctx, in)
	if err != nil {
		return domain.StepExecutionContext{}, fmt.Errorf("check work item type gate: %w", err)
	}
	if !enabled {
		log.Info("skipping step, work item types not enabled for project")
		return domain.EmptyContext(), nil
	}

	if job.Config.SourceProjectID == "" {
		return domain.StepExecutionContext{}, domain.ErrMissingSourceProject
	}

	startAt, totalProcessed := domain.ResumePoint(in.Previous)
	log.Info("starting page", "start_at", startAt, "total_processed", totalProcessed)

	page, err := in.Job.Source.ListIssueTypes(ctx, job.Config.SourceProjectID, startAt, issueTypesPageSize)
	if err != nil {
		return domain.StepExecutionContext{}, fmt.Errorf("pull issue types: %w", err)
	}
	if len(page.Items) == 0 {
		log.Info("no issue types in page, finishing step")
		return domain.TerminalContext(totalProcessed), nil
	}

	drafts := make([]domain.WorkItemType, 0, len(page.Items))
	for _, raw := range page.Items {
		drafts = append(drafts, TransformIssueType(job.Config.ResourceID, job.ProjectID, job.Config.Source, raw))
	}

	pushed, err := s.push(ctx, in, drafts, log)
	if err != nil {
		return domain.StepExecutionContext{}, err
	}

	log.Info("page complete", "pulled", len(page.Items), "pushed", pushed, "has_more", page.HasMore)

	return domain.StepExecutionContext{
		Page: domain.PageContext{
			StartAt:        startAt + issueTypesPageSize,
			HasMore:        page.HasMore,
			TotalProcessed: totalProcessed + len(page.Items),
		},
		Results: domain.StepResult{Pulled: len(page.Items), Pushed: pushed},
	}, nil
}

// shouldExecute gates the step on the workspace feature flag and the
// project configuration. Both lookups are memoized for the job's lifetime.
func (s *IssueTypesStep) shouldExecute(ctx context.Context, in domain.StepInput) (bool, error) {
	job := in.Job.Job

	flagOn, err := withLookup(ctx, s.cache, job.ID, lookupKeyTypesFlag, func(ctx context.Context) (bool, error) {
		return in.Job.Flags.IsEnabled(ctx, job.WorkspaceSlug, job.InitiatorID, domain.FlagWorkItemTypes)
	})
	if err != nil || !flagOn {
		return false, err
	}

	project, err := withLookup(ctx, s.cache, job.ID, lookupKeyProjectConfig, func(ctx context.Context) (domain.Project, error) {
		return in.Job.Target.GetProject(ctx, job.WorkspaceSlug, job.ProjectID)
	})
	if err != nil {
		return false, err
	}
	return project.IsWorkItemTypeEnabled, nil
}

// push reconciles the page's drafts against the target inventory, runs the
// create and update batches concurrently, and writes mappings plus the
// step's snapshot. The page context is only advanced by the caller after
// everything here succeeded, so a crash re-runs the whole page.
func (s *IssueTypesStep) push(ctx context.Context, in domain.StepInput, drafts []domain.WorkItemType, log *slog.Logger) (int, error) {
	job := in.Job.Job

	existing, err := s.fetchExisting(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("fetch existing work item types: %w", err)
	}
	log.Info("fetched target inventory", "existing", len(existing))

	rec := ReconcileWorkItemTypes(drafts, existing)

	// A push can change the inventory even when it fails partway (one
	// batch landed, the other did not), so the next attempt must always
	// re-fetch it.
	defer s.cache.Forget(job.ID, lookupKeyExistingTypes)

	var created, updated []domain.WorkItemType
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		created, err = putWorkItemTypes(gctx, in.Job, rec.ToCreate, domain.PushModeCreate)
		return err
	})
	g.Go(func() error {
		var err error
		updated, err = putWorkItemTypes(gctx, in.Job, rec.ToUpdate, domain.PushModeUpdate)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("push work item types: %w", err)
	}

	result := make([]domain.WorkItemType, 0, len(created)+len(updated)+1)
	result = append(result, created...)
	result = append(result, updated...)
	if rec.Default != nil {
		result = append(result, *rec.Default)
	}

	if err := storeTypeArtifacts(ctx, in.Storage, job.ID, s.Name(), result); err != nil {
		return 0, err
	}

	return len(result), nil
}

func (s *IssueTypesStep) fetchExisting(ctx context.Context, in domain.StepInput) ([]domain.WorkItemType, error) {
	job := in.Job.Job
	return withLookup(ctx, s.cache, job.ID, lookupKeyExistingTypes, func(ctx context.Context) ([]domain.WorkItemType, error) {
		return in.Job.Target.ListWorkItemTypes(ctx, job.WorkspaceSlug, job.ProjectID)
	})
}

func putWorkItemTypes(ctx context.Context, jobCtx domain.JobContext, drafts []domain.WorkItemType, mode domain.PushMode) ([]domain.WorkItemType, error) {
	if len(drafts) == 0 {
		return nil, nil
	}
	return jobCtx.Target.PutWorkItemTypes(ctx, jobCtx.Job.WorkspaceSlug, jobCtx.Job.ProjectID, drafts, mode)
}

// storeTypeArtifacts writes one mapping per result entity that carries both
// identifiers, and overwrites the step's snapshot with the page's entities
// keyed by external id.
func storeTypeArtifacts(ctx context.Context, store domain.MappingStore, jobID, stepName string, types []domain.WorkItemType) error {
	mappings := make([]domain.Mapping, 0, len(types))
	records := make([]map[string]any, 0, len(types))
	for _, t := range types {
		if t.ExternalID == "" || t.ID == "" {
			continue
		}
		mappings = append(mappings, domain.Mapping{ExternalID: t.ExternalID, InternalID: t.ID})
		records = append(records, map[string]any{
			"id":          t.ID,
			"external_id": t.ExternalID,
			"name":        t.Name,
			"is_default":  t.IsDefault,
			"is_epic":     t.IsEpic,
		})
	}

	if err := store.StoreMappings(ctx, jobID, stepName, mappings); err != nil {
		return fmt.Errorf("store work item type mappings: %w", err)
	}
	if err := store.StoreData(ctx, jobID, stepName, records, "external_id"); err != nil {
		return fmt.Errorf("store work item type snapshot: %w", err)
	}
	return nil
}
