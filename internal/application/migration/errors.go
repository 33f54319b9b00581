package migration

import "errors"

var (
	ErrInvalidMigrationRequest = errors.New("invalid migration request")
	ErrEnqueueMigrationJob     = errors.New("failed to enqueue migration job")
	ErrInvalidJobID            = errors.New("invalid job id")
	ErrJobNotFound             = errors.New("migration job not found")
	ErrGetMigrationStatus      = errors.New("failed to get migration status")
	ErrCancelMigration         = errors.New("failed to cancel migration job")
)
