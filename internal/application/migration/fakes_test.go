package migration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob() domain.MigrationJob {
	return domain.MigrationJob{
		ID:            "6f1f8f1a-0b86-4f63-9c2a-3f8f5f1f0001",
		WorkspaceSlug: "acme",
		ProjectID:     "proj-1",
		InitiatorID:   "user-1",
		Config: domain.JobConfig{
			Source:          "jira",
			SourceProjectID: "JIRA-PROJ",
			ResourceID:      "res-1",
		},
		Status:      domain.JobStatusRunning,
		MaxAttempts: 5,
	}
}

// fakeSource serves issue types and users from in-memory slices with
// offset pagination, the way a pull adapter normalizes a remote API.
type fakeSource struct {
	issueTypes []domain.RemoteIssueType
	users      []domain.RemoteUser

	issueTypeErr error
	listCalls    int
}

func (f *fakeSource) ListIssueTypes(ctx context.Context, projectID string, startAt, pageSize int) (domain.IssueTypePage, error) {
	f.listCalls++
	if f.issueTypeErr != nil {
		return domain.IssueTypePage{}, f.issueTypeErr
	}
	return domain.IssueTypePage{
		Items:   pageOf(f.issueTypes, startAt, pageSize),
		HasMore: startAt+pageSize < len(f.issueTypes),
	}, nil
}

func (f *fakeSource) ListUsers(ctx context.Context, startAt, pageSize int) (domain.UserPage, error) {
	return domain.UserPage{
		Items:   pageOf(f.users, startAt, pageSize),
		HasMore: startAt+pageSize < len(f.users),
	}, nil
}

func pageOf[T any](items []T, startAt, pageSize int) []T {
	if startAt >= len(items) {
		return nil
	}
	end := startAt + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[startAt:end]
}

// fakeTarget keeps a mutable work item type and member inventory, assigning
// ids on create like the real target system.
type fakeTarget struct {
	mu sync.Mutex

	project       domain.Project
	projectErr    error
	workItemTypes []domain.WorkItemType
	members       []domain.Member

	createTypesErr error
	updateTypesErr error
	// createMembersErr is returned after the drafts have landed, like a
	// bulk create whose response is lost on the wire.
	createMembersErr error
	createdTypes     int
	updatedTypes     int
	nextID           int
}

func (f *fakeTarget) GetProject(ctx context.Context, workspaceSlug, projectID string) (domain.Project, error) {
	if f.projectErr != nil {
		return domain.Project{}, f.projectErr
	}
	return f.project, nil
}

func (f *fakeTarget) ListWorkItemTypes(ctx context.Context, workspaceSlug, projectID string) ([]domain.WorkItemType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WorkItemType, len(f.workItemTypes))
	copy(out, f.workItemTypes)
	return out, nil
}

func (f *fakeTarget) PutWorkItemTypes(ctx context.Context, workspaceSlug, projectID string, drafts []domain.WorkItemType, mode domain.PushMode) ([]domain.WorkItemType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if mode == domain.PushModeCreate && f.createTypesErr != nil {
		return nil, f.createTypesErr
	}
	if mode == domain.PushModeUpdate && f.updateTypesErr != nil {
		return nil, f.updateTypesErr
	}

	result := make([]domain.WorkItemType, 0, len(drafts))
	for _, draft := range drafts {
		switch mode {
		case domain.PushModeCreate:
			f.nextID++
			draft.ID = fmt.Sprintf("wit-%d", f.nextID)
			f.workItemTypes = append(f.workItemTypes, draft)
			f.createdTypes++
		case domain.PushModeUpdate:
			for i := range f.workItemTypes {
				if f.workItemTypes[i].ID == draft.ID {
					f.workItemTypes[i] = draft
					break
				}
			}
			f.updatedTypes++
		}
		result = append(result, draft)
	}
	return result, nil
}

func (f *fakeTarget) ListMembers(ctx context.Context, workspaceSlug string) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Member, len(f.members))
	copy(out, f.members)
	return out, nil
}

func (f *fakeTarget) CreateMembers(ctx context.Context, workspaceSlug, projectID string, drafts []domain.Member) ([]domain.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]domain.Member, 0, len(drafts))
	for _, draft := range drafts {
		f.nextID++
		draft.ID = fmt.Sprintf("member-%d", f.nextID)
		f.members = append(f.members, draft)
		result = append(result, draft)
	}
	if f.createMembersErr != nil {
		return nil, f.createMembersErr
	}
	return result, nil
}

func (f *fakeTarget) epicCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, t := range f.workItemTypes {
		if t.IsEpic {
			count++
		}
	}
	return count
}

// fakeStore implements MappingStore with per-key snapshot overwrite
// semantics, mirroring the Postgres repository.
type fakeStore struct {
	mu       sync.Mutex
	mappings map[string]map[string]string // job:step -> externalID -> internalID
	data     map[string]map[string]map[string]any

	storeMappingsErr error
	storeDataErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mappings: make(map[string]map[string]string),
		data:     make(map[string]map[string]map[string]any),
	}
}

func storeKey(jobID, stepName string) string { return jobID + ":" + stepName }

func (f *fakeStore) StoreMappings(ctx context.Context, jobID, stepName string, mappings []domain.Mapping) error {
	if f.storeMappingsErr != nil {
		return f.storeMappingsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := storeKey(jobID, stepName)
	if f.mappings[key] == nil {
		f.mappings[key] = make(map[string]string)
	}
	for _, m := range mappings {
		if _, ok := f.mappings[key][m.ExternalID]; !ok {
			f.mappings[key][m.ExternalID] = m.InternalID
		}
	}
	return nil
}

func (f *fakeStore) StoreData(ctx context.Context, jobID, stepName string, records []map[string]any, keyField string) error {
	if f.storeDataErr != nil {
		return f.storeDataErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := storeKey(jobID, stepName)
	if f.data[key] == nil {
		f.data[key] = make(map[string]map[string]any)
	}
	for _, record := range records {
		keyValue, ok := record[keyField]
		if !ok {
			continue
		}
		f.data[key][fmt.Sprint(keyValue)] = record
	}
	return nil
}

func (f *fakeStore) GetData(ctx context.Context, jobID, stepName string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byKey := f.data[storeKey(jobID, stepName)]
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	records := make([]map[string]any, 0, len(byKey))
	for _, k := range keys {
		records = append(records, byKey[k])
	}
	return records, nil
}

func (f *fakeStore) mappingCount(jobID, stepName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mappings[storeKey(jobID, stepName)])
}

// fakeFlags answers every lookup with a fixed value.
type fakeFlags struct {
	enabled bool
	err     error
	calls   int
}

func (f *fakeFlags) IsEnabled(ctx context.Context, workspaceSlug, userID, flagKey string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.enabled, nil
}

// fakeJobRepo implements the runner's and worker's job repository slices in
// memory.
type fakeJobRepo struct {
	mu sync.Mutex

	states    map[string]domain.StepState
	saveCalls int
	saveErr   error

	cancelled  bool
	heartbeats int

	claimedJob *domain.MigrationJob
	claimErr   error

	pinnedResourceID string
	pinCalls         int
	completed        bool
	markedCancelled  bool
	requeued         bool
	requeueReason    string
	failed           bool
	failReason       string
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{states: make(map[string]domain.StepState)}
}

func (f *fakeJobRepo) LoadStepStates(ctx context.Context, jobID string) (map[string]domain.StepState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.StepState, len(f.states))
	for k, v := range f.states {
		out[k] = v
	}
	return out, nil
}

func (f *fakeJobRepo) SaveStepState(ctx context.Context, jobID, stepName string, execCtx domain.StepExecutionContext, completed bool) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	f.states[stepName] = domain.StepState{Context: execCtx, Completed: completed}
	return nil
}

func (f *fakeJobRepo) Heartbeat(ctx context.Context, jobID string, lease time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return nil
}

func (f *fakeJobRepo) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled, nil
}

func (f *fakeJobRepo) ClaimNext(ctx context.Context, lease time.Duration) (*domain.MigrationJob, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.claimedJob
	f.claimedJob = nil
	return job, nil
}

func (f *fakeJobRepo) PinResourceID(ctx context.Context, jobID, resourceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinCalls++
	if f.pinnedResourceID == "" {
		f.pinnedResourceID = resourceID
	}
	return f.pinnedResourceID, nil
}

func (f *fakeJobRepo) Complete(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = true
	return nil
}

func (f *fakeJobRepo) MarkCancelled(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedCancelled = true
	return nil
}

func (f *fakeJobRepo) Requeue(ctx context.Context, jobID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = true
	f.requeueReason = reason
	return nil
}

func (f *fakeJobRepo) Fail(ctx context.Context, jobID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = true
	f.failReason = reason
	return nil
}
