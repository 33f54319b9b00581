package migration

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobConfig carries the source-system binding for one migration run. It is
// read-only for the duration of the job, except for ResourceID which is
// pinned once before the first step runs (see Worker.ProcessJob).
type JobConfig struct {
	Source          string `json:"source"`
	SourceProjectID string `json:"source_project_id"`
	ResourceID      string `json:"resource_id,omitempty"`
	SkipUserImport  bool   `json:"skip_user_import,omitempty"`
}

type MigrationJob struct {
	ID            string
	WorkspaceSlug string
	ProjectID     string
	InitiatorID   string
	Config        JobConfig
	Status        JobStatus
	Attempts      int
	MaxAttempts   int
	ErrorMessage  string
}

// PageContext is the resumable cursor state threaded between invocations of
// the same step. TotalProcessed never decreases across invocations;
// HasMore=false is terminal for the step.
type PageContext struct {
	StartAt        int  `json:"start_at"`
	HasMore        bool `json:"has_more"`
	TotalProcessed int  `json:"total_processed"`
}

type StepResult struct {
	Pulled int      `json:"pulled"`
	Pushed int      `json:"pushed"`
	Errors []string `json:"errors,omitempty"`
}

// StepExecutionContext is returned by every step invocation and fed back as
// the previous context on the next invocation of the same step.
type StepExecutionContext struct {
	Page    PageContext `json:"page_ctx"`
	Results StepResult  `json:"results"`
}

// StepState is the persisted form of a step's last execution context.
type StepState struct {
	Context   StepExecutionContext
	Completed bool
}

// EmptyContext is the terminal context returned by a gated-off step.
func EmptyContext() StepExecutionContext {
	return StepExecutionContext{
		Page: PageContext{StartAt: 0, HasMore: false, TotalProcessed: 0},
	}
}

// TerminalContext ends a step while preserving its processed count, for the
// case where a page comes back empty mid-run.
func TerminalContext(totalProcessed int) StepExecutionContext {
	return StepExecutionContext{
		Page: PageContext{HasMore: false, TotalProcessed: totalProcessed},
	}
}

// ResumePoint extracts the pagination state from the previous execution
// context, or the zero starting point on a step's first invocation.
func ResumePoint(prev *StepExecutionContext) (startAt, totalProcessed int) {
	if prev == nil {
		return 0, 0
	}
	return prev.Page.StartAt, prev.Page.TotalProcessed
}
