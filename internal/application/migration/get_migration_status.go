package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

type GetMigrationStatusInput struct {
	JobID string
}

type MigrationStepStatus struct {
	Name           string `json:"name"`
	Pulled         int    `json:"pulled"`
	Pushed         int    `json:"pushed"`
	TotalProcessed int    `json:"total_processed"`
	Completed      bool   `json:"completed"`
}

type GetMigrationStatusOutput struct {
	JobID        string                `json:"job_id"`
	Status       string                `json:"status"`
	Attempts     int                   `json:"attempts"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Steps        []MigrationStepStatus `json:"steps"`
}

type GetMigrationStatus interface {
	Execute(ctx context.Context, in GetMigrationStatusInput) (GetMigrationStatusOutput, error)
}

type migrationStatusRepo interface {
	GetByID(ctx context.Context, jobID string) (*domain.MigrationJob, error)
	LoadStepStates(ctx context.Context, jobID string) (map[string]domain.StepState, error)
}

type getMigrationStatus struct {
	jobRepo migrationStatusRepo
}

func NewGetMigrationStatus(jobRepo migrationStatusRepo) GetMigrationStatus {
	return &getMigrationStatus{jobRepo: jobRepo}
}

func (uc *getMigrationStatus) Execute(ctx context.Context, in GetMigrationStatusInput) (GetMigrationStatusOutput, error) {
	if uuid.Validate(in.JobID) != nil {
		return GetMigrationStatusOutput{}, ErrInvalidJobID
	}

	job, err := uc.jobRepo.GetByID(ctx, in.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return GetMigrationStatusOutput{}, ErrJobNotFound
		}
		return GetMigrationStatusOutput{}, fmt.Errorf("%w: %v", ErrGetMigrationStatus, err)
	}

	states, err := uc.jobRepo.LoadStepStates(ctx, in.JobID)
	if err != nil {
		return GetMigrationStatusOutput{}, fmt.Errorf("%w: %v", ErrGetMigrationStatus, err)
	}

	steps := make([]MigrationStepStatus, 0, len(states))
	for name, st := range states {
		steps = append(steps, MigrationStepStatus{
			Name:           name,
			Pulled:         st.Context.Results.Pulled,
			Pushed:         st.Context.Results.Pushed,
			TotalProcessed: st.Context.Page.TotalProcessed,
			Completed:      st.Completed,
		})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Name < steps[j].Name })

	return GetMigrationStatusOutput{
		JobID:        job.ID,
		Status:       string(job.Status),
		Attempts:     job.Attempts,
		ErrorMessage: job.ErrorMessage,
		Steps:        steps,
	}, nil
}
