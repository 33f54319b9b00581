package migration

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

type StartMigrationInput struct {
	WorkspaceSlug string
	ProjectID     string
	InitiatorID   string
	Config        domain.JobConfig
}

type StartMigrationOutput struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type StartMigration interface {
	Execute(ctx context.Context, in StartMigrationInput) (StartMigrationOutput, error)
}

type migrationJobEnqueuer interface {
	Enqueue(ctx context.Context, job domain.MigrationJob) (string, error)
}

type startMigration struct {
	jobRepo migrationJobEnqueuer
}

func NewStartMigration(jobRepo migrationJobEnqueuer) StartMigration {
	return &startMigration{jobRepo: jobRepo}
}

func (uc *startMigration) Execute(ctx context.Context, in StartMigrationInput) (StartMigrationOutput, error) {
	workspaceSlug := strings.TrimSpace(in.WorkspaceSlug)
	projectID := strings.TrimSpace(in.ProjectID)
	initiatorID := strings.TrimSpace(in.InitiatorID)

	if workspaceSlug == "" || projectID == "" || initiatorID == "" {
		return StartMigrationOutput{}, ErrInvalidMigrationRequest
	}
	if strings.TrimSpace(in.Config.Source) == "" || strings.TrimSpace(in.Config.SourceProjectID) == "" {
		return StartMigrationOutput{}, ErrInvalidMigrationRequest
	}

	jobID, err := uc.jobRepo.Enqueue(ctx, domain.MigrationJob{
		WorkspaceSlug: workspaceSlug,
		ProjectID:     projectID,
		InitiatorID:   initiatorID,
		Config:        in.Config,
	})
	if err != nil {
		return StartMigrationOutput{}, fmt.Errorf("%w: %v", ErrEnqueueMigrationJob, err)
	}

	return StartMigrationOutput{
		JobID:  jobID,
		Status: string(domain.JobStatusQueued),
	}, nil
}
