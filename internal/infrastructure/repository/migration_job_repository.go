package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
	"github.com/trackerlabs/migrate/internal/infrastructure/db/models"
)

// MigrationJobRepository owns the migration_jobs and migration_step_states
// tables: job lifecycle (enqueue, claim with lease, heartbeat, requeue,
// complete, fail, cancel) and durable per-step execution contexts.
type MigrationJobRepository struct {
	db *gorm.DB
}

func NewMigrationJobRepository(db *gorm.DB) *MigrationJobRepository {
	return &MigrationJobRepository{db: db}
}

func (r *MigrationJobRepository) Enqueue(ctx context.Context, job domain.MigrationJob) (string, error) {
	config, err := json.Marshal(job.Config)
	if err != nil {
		return "", fmt.Errorf("marshal job config: %w", err)
	}

	row := models.MigrationJob{
		WorkspaceSlug: job.WorkspaceSlug,
		ProjectID:     job.ProjectID,
		InitiatorID:   job.InitiatorID,
		Config:        config,
		Status:        string(domain.JobStatusQueued),
		MaxAttempts:   5,
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("create migration job: %w", err)
	}

	return row.ID, nil
}

// claimSQL picks the oldest claimable job: queued, or running with an
// expired lease (its worker died). SKIP LOCKED keeps concurrent workers
// from fighting over the same row.
const claimSQL = `
UPDATE migration_jobs
SET status = 'running',
    attempts = attempts + 1,
    started_at = COALESCE(started_at, NOW()),
    heartbeat_at = NOW(),
    lease_expires_at = NOW() + ($1 * INTERVAL '1 second'),
    updated_at = NOW()
WHERE id = (
  SELECT id FROM migration_jobs
  WHERE (status = 'queued' OR (status = 'running' AND lease_expires_at < NOW()))
    AND cancelled_at IS NULL
  ORDER BY created_at
  FOR UPDATE SKIP LOCKED
  LIMIT 1
)
RETURNING *
`

func (r *MigrationJobRepository) ClaimNext(ctx context.Context, lease time.Duration) (*domain.MigrationJob, error) {
	var row models.MigrationJob
	result := r.db.WithContext(ctx).Raw(claimSQL, int(lease.Seconds())).Scan(&row)
	if result.Error != nil {
		return nil, fmt.Errorf("claim migration job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	job, err := toDomainJob(row)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *MigrationJobRepository) Heartbeat(ctx context.Context, jobID string, lease time.Duration) error {
	err := r.db.WithContext(ctx).
		Model(&models.MigrationJob{}).
		Where("id = ? AND status = ?", jobID, string(domain.JobStatusRunning)).
		Updates(map[string]any{
			"heartbeat_at":     gorm.Expr("NOW()"),
			"lease_expires_at": gorm.Expr("NOW() + (? * INTERVAL '1 second')", int(lease.Seconds())),
		}).Error
	if err != nil {
		return fmt.Errorf("heartbeat migration job: %w", err)
	}
	return nil
}

// PinResourceID writes the generated resource id into the job config, only
// if the config does not carry one yet, so the first writer wins and the
// id stays stable for the lifetime of the job. The stored id is read back
// and returned; when the guarded update lost to an earlier writer, that
// writer's id is the one callers must use.
func (r *MigrationJobRepository) PinResourceID(ctx context.Context, jobID, resourceID string) (string, error) {
	err := r.db.WithContext(ctx).Exec(`
UPDATE migration_jobs
SET config = jsonb_set(config, '{resource_id}', to_jsonb(?::text), true),
    updated_at = NOW()
WHERE id = ? AND (config->>'resource_id') IS NULL
`, resourceID, jobID).Error
	if err != nil {
		return "", fmt.Errorf("pin resource id: %w", err)
	}

	var stored string
	result := r.db.WithContext(ctx).
		Raw("SELECT config->>'resource_id' FROM migration_jobs WHERE id = ?", jobID).
		Scan(&stored)
	if result.Error != nil {
		return "", fmt.Errorf("read pinned resource id: %w", result.Error)
	}
	if result.RowsAffected == 0 || stored == "" {
		return "", domain.ErrJobNotFound
	}
	return stored, nil
}

func (r *MigrationJobRepository) SaveStepState(ctx context.Context, jobID, stepName string, execCtx domain.StepExecutionContext, completed bool) error {
	payload, err := json.Marshal(execCtx)
	if err != nil {
		return fmt.Errorf("marshal step context: %w", err)
	}

	row := models.MigrationStepState{
		JobID:     jobID,
		StepName:  stepName,
		Context:   payload,
		Completed: completed,
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}, {Name: "step_name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"context":    payload,
			"completed":  completed,
			"updated_at": gorm.Expr("NOW()"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save step state: %w", err)
	}
	return nil
}

func (r *MigrationJobRepository) LoadStepStates(ctx context.Context, jobID string) (map[string]domain.StepState, error) {
	var rows []models.MigrationStepState
	if err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load step states: %w", err)
	}

	states := make(map[string]domain.StepState, len(rows))
	for _, row := range rows {
		var execCtx domain.StepExecutionContext
		if err := json.Unmarshal(row.Context, &execCtx); err != nil {
			return nil, fmt.Errorf("unmarshal step context for %s: %w", row.StepName, err)
		}
		states[row.StepName] = domain.StepState{Context: execCtx, Completed: row.Completed}
	}
	return states, nil
}

func (r *MigrationJobRepository) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var row models.MigrationJob
	err := r.db.WithContext(ctx).Select("cancelled_at").Where("id = ?", jobID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("check cancellation: %w", err)
	}
	return row.CancelledAt != nil, nil
}

func (r *MigrationJobRepository) Cancel(ctx context.Context, jobID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.MigrationJob{}).
		Where("id = ? AND cancelled_at IS NULL", jobID).
		Update("cancelled_at", gorm.Expr("NOW()"))
	if result.Error != nil {
		return fmt.Errorf("cancel migration job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Either unknown or already cancelled; only the former is an error.
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.MigrationJob{}).Where("id = ?", jobID).Count(&count).Error; err != nil {
			return fmt.Errorf("cancel migration job: %w", err)
		}
		if count == 0 {
			return domain.ErrJobNotFound
		}
	}
	return nil
}

// MarkCancelled is the terminal transition for a job whose run stopped on
// a cancellation request. Step states and mappings are kept; the status
// distinguishes a cancelled job from one that succeeded or failed.
func (r *MigrationJobRepository) MarkCancelled(ctx context.Context, jobID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.MigrationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":           string(domain.JobStatusCancelled),
			"finished_at":      gorm.Expr("NOW()"),
			"lease_expires_at": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("mark migration job cancelled: %w", err)
	}
	return nil
}

func (r *MigrationJobRepository) Complete(ctx context.Context, jobID string) error {
	err := r.db.WithContext(ctx).
		Model(&models.MigrationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":           string(domain.JobStatusSucceeded),
			"error_message":    nil,
			"finished_at":      gorm.Expr("NOW()"),
			"lease_expires_at": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("complete migration job: %w", err)
	}
	return nil
}

func (r *MigrationJobRepository) Requeue(ctx context.Context, jobID, reason string) error {
	err := r.db.WithContext(ctx).
		Model(&models.MigrationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":           string(domain.JobStatusQueued),
			"error_message":    reason,
			"lease_expires_at": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("requeue migration job: %w", err)
	}
	return nil
}

func (r *MigrationJobRepository) Fail(ctx context.Context, jobID, reason string) error {
	err := r.db.WithContext(ctx).
		Model(&models.MigrationJob{}).
		Where("id = ?", jobID).
		Updates(map[string]any{
			"status":        string(domain.JobStatusFailed),
			"error_message": reason,
			"finished_at":   gorm.Expr("NOW()"),
		}).Error
	if err != nil {
		return fmt.Errorf("fail migration job: %w", err)
	}
	return nil
}

func (r *MigrationJobRepository) GetByID(ctx context.Context, jobID string) (*domain.MigrationJob, error) {
	var row models.MigrationJob
	err := r.db.WithContext(ctx).Where("id = ?", jobID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get migration job: %w", err)
	}
	return toDomainJob(row)
}

func toDomainJob(row models.MigrationJob) (*domain.MigrationJob, error) {
	var config domain.JobConfig
	if len(row.Config) > 0 {
		if err := json.Unmarshal(row.Config, &config); err != nil {
			return nil, fmt.Errorf("unmarshal job config: %w", err)
		}
	}

	job := domain.MigrationJob{
		ID:            row.ID,
		WorkspaceSlug: row.WorkspaceSlug,
		ProjectID:     row.ProjectID,
		InitiatorID:   row.InitiatorID,
		Config:        config,
		Status:        domain.JobStatus(row.Status),
		Attempts:      row.Attempts,
		MaxAttempts:   row.MaxAttempts,
	}
	if row.ErrorMessage != nil {
		job.ErrorMessage = *row.ErrorMessage
	}
	return &job, nil
}
