package migration

import "context"

// MappingStore persists -- durably, per job and step -- the external to
// internal identifier mappings and the denormalized snapshot records that
// downstream steps resolve references through.
type MappingStore interface {
	StoreMappings(ctx context.Context, jobID, stepName string, mappings []Mapping) error
	StoreData(ctx context.Context, jobID, stepName string, records []map[string]any, keyField string) error
	GetData(ctx context.Context, jobID, stepName string) ([]map[string]any, error)
}

// SourceClient is the paginated read side of the external system. Adapters
// own the remote pagination idiom and normalize it to (startAt, hasMore).
type SourceClient interface {
	ListIssueTypes(ctx context.Context, projectID string, startAt, pageSize int) (IssueTypePage, error)
	ListUsers(ctx context.Context, startAt, pageSize int) (UserPage, error)
}

// TargetClient is the inventory-fetch and batched-write side of the target
// system.
type TargetClient interface {
	GetProject(ctx context.Context, workspaceSlug, projectID string) (Project, error)
	ListWorkItemTypes(ctx context.Context, workspaceSlug, projectID string) ([]WorkItemType, error)
	PutWorkItemTypes(ctx context.Context, workspaceSlug, projectID string, drafts []WorkItemType, mode PushMode) ([]WorkItemType, error)
	ListMembers(ctx context.Context, workspaceSlug string) ([]Member, error)
	CreateMembers(ctx context.Context, workspaceSlug, projectID string, drafts []Member) ([]Member, error)
}

// FeatureFlagLookup answers whether an optional entity kind is enabled for a
// workspace. Flag delivery itself is an external collaborator.
type FeatureFlagLookup interface {
	IsEnabled(ctx context.Context, workspaceSlug, userID, flagKey string) (bool, error)
}
