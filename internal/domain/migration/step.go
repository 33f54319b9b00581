package migration

import "context"

// Step names, unique within the pipeline.
const (
	StepIssueTypes = "issue_types"
	StepUsers      = "users"
)

// Feature flag keys consulted by step gates.
const FlagWorkItemTypes = "WORK_ITEM_TYPES"

// JobContext bundles everything a step needs to reach the outside world for
// one job. It is rebuilt from the job row on every claim, so steps carry no
// state of their own between invocations.
type JobContext struct {
	Job    MigrationJob
	Source SourceClient
	Target TargetClient
	Flags  FeatureFlagLookup
}

// StepInput is the single argument to Step.Execute. Previous is nil on the
// step's first invocation for a job. DependencyData holds the latest
// snapshot records of each declared dependency, keyed by step name.
type StepInput struct {
	Job            JobContext
	Storage        MappingStore
	Previous       *StepExecutionContext
	DependencyData map[string][]map[string]any
}

// Step is one entity kind's pull->transform->reconcile->push unit of work,
// invoked once per page. Steps do not know about each other; ordering is
// enforced solely by the runner through Dependencies.
type Step interface {
	Name() string
	Dependencies() []string
	Execute(ctx context.Context, in StepInput) (StepExecutionContext, error)
}
