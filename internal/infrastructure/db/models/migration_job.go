package models

import "time"

type MigrationJob struct {
	ID             string  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	WorkspaceSlug  string  `gorm:"type:text;not null"`
	ProjectID      string  `gorm:"type:uuid;not null"`
	InitiatorID    string  `gorm:"type:uuid;not null"`
	Config         []byte  `gorm:"type:jsonb;not null"`
	Status         string  `gorm:"type:text;not null"`
	Attempts       int     `gorm:"not null;default:0"`
	MaxAttempts    int     `gorm:"not null;default:5"`
	ErrorMessage   *string `gorm:"type:text"`
	HeartbeatAt    *time.Time
	LeaseExpiresAt *time.Time
	CancelledAt    *time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (MigrationJob) TableName() string {
	return "migration_jobs"
}

type MigrationStepState struct {
	ID        int64  `gorm:"primaryKey"`
	JobID     string `gorm:"type:uuid;not null;uniqueIndex:idx_step_states_job_step"`
	StepName  string `gorm:"type:text;not null;uniqueIndex:idx_step_states_job_step"`
	Context   []byte `gorm:"type:jsonb;not null"`
	Completed bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MigrationStepState) TableName() string {
	return "migration_step_states"
}
