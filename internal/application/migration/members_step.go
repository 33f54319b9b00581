package migration

import (
	"context"
	"fmt"
	"log/slog"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

const membersPageSize = 100

const lookupKeyExistingMembers = "existing_members"

// MembersStep imports the source system's users as workspace members. It is
// create-only: existing members, matched by email, are left untouched, and
// mappings are written for both existing and newly created members so
// dependent steps can resolve assignees.
type MembersStep struct {
	cache  *Lookup
	logger *slog.Logger
}

func NewMembersStep(cache *Lookup, logger *slog.Logger) *MembersStep {
	return &MembersStep{cache: cache, logger: logger}
}

func (s *MembersStep) Name() string { return domain.StepUsers }

func (s *MembersStep) Dependencies() []string { return nil }

func (s *MembersStep) Execute(ctx context.Context, in domain.StepInput) (domain.StepExecutionContext, error) {
	job := in.Job.Job
	log := s.logger.With("job_id", job.ID, "step", s.Name())

	if job.Config.SkipUserImport {
		log.Info("skipping step, user import disabled in job config")
		return domain.EmptyContext(), nil
	}

	startAt, totalProcessed := domain.ResumePoint(in.Previous)
	log.Info("starting page", "start_at", startAt, "total_processed", totalProcessed)

	page, err := in.Job.Source.ListUsers(ctx, startAt, membersPageSize)
	if err != nil {
		return domain.StepExecutionContext{}, fmt.Errorf("pull users: %w", err)
	}
	if len(page.Items) == 0 {
		log.Info("no users in page, finishing step")
		return domain.TerminalContext(totalProcessed), nil
	}

	drafts := make([]domain.Member, 0, len(page.Items))
	for _, raw := range page.Items {
		drafts = append(drafts, TransformUser(raw))
	}

	pushed, err := s.push(ctx, in, drafts, log)
	if err != nil {
		return domain.StepExecutionContext{}, err
	}

	log.Info("page complete", "pulled", len(page.Items), "pushed", pushed, "has_more", page.HasMore)

	return domain.StepExecutionContext{
		Page: domain.PageContext{
			StartAt:        startAt + membersPageSize,
			HasMore:        page.HasMore,
			TotalProcessed: totalProcessed + len(page.Items),
		},
		Results: domain.StepResult{Pulled: len(page.Items), Pushed: pushed},
	}, nil
}

func (s *MembersStep) push(ctx context.Context, in domain.StepInput, drafts []domain.Member, log *slog.Logger) (int, error) {
	job := in.Job.Job

	existing, err := withLookup(ctx, s.cache, job.ID, lookupKeyExistingMembers, func(ctx context.Context) ([]domain.Member, error) {
		return in.Job.Target.ListMembers(ctx, job.WorkspaceSlug)
	})
	if err != nil {
		return 0, fmt.Errorf("fetch existing members: %w", err)
	}

	toCreate := ReconcileMembers(drafts, existing)
	log.Info("member deduplication", "pulled", len(drafts), "existing", len(existing), "to_create", len(toCreate))

	var created []domain.Member
	if len(toCreate) > 0 {
		// The create can land even when the call errors (lost response),
		// so the next attempt must re-fetch the member list either way.
		defer s.cache.Forget(job.ID, lookupKeyExistingMembers)

		created, err = in.Job.Target.CreateMembers(ctx, job.WorkspaceSlug, job.ProjectID, toCreate)
		if err != nil {
			return 0, fmt.Errorf("create members: %w", err)
		}
	}

	if err := storeMemberArtifacts(ctx, in.Storage, job.ID, s.Name(), existing, created); err != nil {
		return 0, err
	}

	return len(created), nil
}

// storeMemberArtifacts maps member emails to target member ids, for both
// pre-existing and newly created members.
func storeMemberArtifacts(ctx context.Context, store domain.MappingStore, jobID, stepName string, existing, created []domain.Member) error {
	all := make([]domain.Member, 0, len(existing)+len(created))
	all = append(all, existing...)
	all = append(all, created...)

	mappings := make([]domain.Mapping, 0, len(all))
	records := make([]map[string]any, 0, len(all))
	for _, m := range all {
		if m.Email == "" || m.ID == "" {
			continue
		}
		mappings = append(mappings, domain.Mapping{ExternalID: m.Email, InternalID: m.ID})
		records = append(records, map[string]any{
			"id":           m.ID,
			"email":        m.Email,
			"display_name": m.DisplayName,
			"role":         m.Role,
		})
	}

	if err := store.StoreMappings(ctx, jobID, stepName, mappings); err != nil {
		return fmt.Errorf("store member mappings: %w", err)
	}
	if err := store.StoreData(ctx, jobID, stepName, records, "email"); err != nil {
		return fmt.Errorf("store member snapshot: %w", err)
	}
	return nil
}
