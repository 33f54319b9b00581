package migration

import "errors"

var (
	ErrJobNotFound          = errors.New("migration job not found")
	ErrMissingSourceProject = errors.New("source project id missing from job config")
	ErrUnknownSource        = errors.New("no client factory registered for source")
	ErrStepDependency       = errors.New("step dependency cannot be satisfied")
	ErrMappingNotFound      = errors.New("mapping not found")

	// ErrJobCancelled reports that a run stopped because cancellation was
	// requested; the job is incomplete, not failed.
	ErrJobCancelled = errors.New("migration job cancelled")
)
