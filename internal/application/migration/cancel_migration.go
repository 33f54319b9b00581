package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

type CancelMigrationInput struct {
	JobID string
}

type CancelMigration interface {
	Execute(ctx context.Context, in CancelMigrationInput) error
}

type migrationCanceller interface {
	Cancel(ctx context.Context, jobID string) error
}

type cancelMigration struct {
	jobRepo migrationCanceller
}

func NewCancelMigration(jobRepo migrationCanceller) CancelMigration {
	return &cancelMigration{jobRepo: jobRepo}
}

// Execute flags the job for cancellation. The runner honors the flag
// between pages; an in-flight page is allowed to finish durably.
func (uc *cancelMigration) Execute(ctx context.Context, in CancelMigrationInput) error {
	if uuid.Validate(in.JobID) != nil {
		return ErrInvalidJobID
	}

	if err := uc.jobRepo.Cancel(ctx, in.JobID); err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("%w: %v", ErrCancelMigration, err)
	}
	return nil
}
