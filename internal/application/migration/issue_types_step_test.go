package migration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	app "github.com/trackerlabs/migrate/internal/application/migration"
	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

func issueTypesFixture(count int) []domain.RemoteIssueType {
	items := make([]domain.RemoteIssueType, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, domain.RemoteIssueType{
			ID:   fmt.Sprintf("1%04d", i),
			Name: fmt.Sprintf("Type %d", i),
		})
	}
	return items
}

func stepInput(job domain.MigrationJob, source *fakeSource, target *fakeTarget, flags *fakeFlags, store *fakeStore, prev *domain.StepExecutionContext) domain.StepInput {
	return domain.StepInput{
		Job: domain.JobContext{
			Job:    job,
			Source: source,
			Target: target,
			Flags:  flags,
		},
		Storage:  store,
		Previous: prev,
	}
}

func TestIssueTypesStepGate(t *testing.T) {
	t.Parallel()

	t.Run("disabled flag skips with terminal context", func(t *testing.T) {
		source := &fakeSource{issueTypes: issueTypesFixture(10)}
		target := &fakeTarget{project: domain.Project{IsWorkItemTypeEnabled: true}}
		step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())

		got, err := step.Execute(context.Background(), stepInput(testJob(), source, target, &fakeFlags{enabled: false}, newFakeStore(), nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Page.HasMore {
			t.Fatal("skipped step must return a terminal context")
		}
		if source.listCalls != 0 {
			t.Fatal("skipped step must not pull from the source")
		}
	})

	t.Run("project without work item types skips", func(t *testing.T) {
		source := &fakeSource{issueTypes: issueTypesFixture(10)}
		target := &fakeTarget{project: domain.Project{IsWorkItemTypeEnabled: false}}
		step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())

		got, err := step.Execute(context.Background(), stepInput(testJob(), source, target, &fakeFlags{enabled: true}, newFakeStore(), nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Page.HasMore || source.listCalls != 0 {
			t.Fatal("gated step must terminate without pulling")
		}
	})

	t.Run("gate lookups are memoized across pages", func(t *testing.T) {
		source := &fakeSource{issueTypes: issueTypesFixture(120)}
		target := &fakeTarget{project: domain.Project{IsWorkItemTypeEnabled: true}}
		flags := &fakeFlags{enabled: true}
		step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())

		var prev *domain.StepExecutionContext
		for i := 0; i < 3; i++ {
			got, err := step.Execute(context.Background(), stepInput(testJob(), source, target, flags, newFakeStore(), prev))
			if err != nil {
				t.Fatalf("page %d: unexpected error: %v", i, err)
			}
			prev = &got
		}
		if flags.calls != 1 {
			t.Fatalf("expected a single flag lookup, got %d", flags.calls)
		}
	})
}

func TestIssueTypesStepMissingSourceProject(t *testing.T) {
	t.Parallel()

	job := testJob()
	job.Config.SourceProjectID = ""
	target := &fakeTarget{project: domain.Project{IsWorkItemTypeEnabled: true}}
	step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())

	_, err := step.Execute(context.Background(), stepInput(job, &fakeSource{}, target, &fakeFlags{enabled: true}, newFakeStore(), nil))
	if !errors.Is(err, domain.ErrMissingSourceProject) {
		t.Fatalf("expected ErrMissingSourceProject, got %v", err)
	}
}

func TestIssueTypesStepPagination(t *testing.T) {
	t.Parallel()

	source := &fakeSource{issueTypes: issueTypesFixture(120)}
	target := &fakeTarget{project: domain.Project{IsWorkItemTypeEnabled: true}}
	store := newFakeStore()
	step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())
	job := testJob()

	var prev *domain.StepExecutionContext
	pages := 0
	for {
		got, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, store, prev))
		if err != nil {
			t.Fatalf("page %d: unexpected error: %v", pages, err)
		}
		pages++
		if got.Page.TotalProcessed < prevProcessed(prev) {
			t.Fatal("total processed must never decrease")
		}
		prev = &got
		if !got.Page.HasMore {
			break
		}
	}

	if pages != 3 {
		t.Fatalf("expected 3 pages of 50 for 120 items, got %d", pages)
	}
	if prev.Page.TotalProcessed != 120 {
		t.Fatalf("expected 120 processed, got %d", prev.Page.TotalProcessed)
	}
	if got := store.mappingCount(job.ID, domain.StepIssueTypes); got != 120 {
		t.Fatalf("expected a mapping per migrated type, got %d", got)
	}
	if target.createdTypes != 120 {
		t.Fatalf("expected 120 creates, got %d", target.createdTypes)
	}
}

func prevProcessed(prev *domain.StepExecutionContext) int {
	if prev == nil {
		return 0
	}
	return prev.Page.TotalProcessed
}

func TestIssueTypesStepEpicSingleton(t *testing.T) {
	t.Parallel()

	t.Run("existing epic is patched not duplicated", func(t *testing.T) {
		source := &fakeSource{issueTypes: []domain.RemoteIssueType{
			{ID: "1", Name: "Epic"},
			{ID: "2", Name: "Bug"},
		}}
		target := &fakeTarget{
			project:       domain.Project{IsWorkItemTypeEnabled: true},
			workItemTypes: []domain.WorkItemType{{ID: "wit-epic", Name: "Epic", IsEpic: true}},
		}
		step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())
		job := testJob()

		_, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, newFakeStore(), nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := target.epicCount(); got != 1 {
			t.Fatalf("expected exactly one epic on the target, got %d", got)
		}
		if target.updatedTypes != 1 {
			t.Fatalf("expected epic patch via update, got %d updates", target.updatedTypes)
		}
	})

	t.Run("epic is created once when none exists", func(t *testing.T) {
		source := &fakeSource{issueTypes: []domain.RemoteIssueType{
			{ID: "1", Name: "Epic"},
			{ID: "2", Name: "Bug"},
		}}
		target := &fakeTarget{project: domain.Project{IsWorkItemTypeEnabled: true}}
		cache := app.NewLookup()
		step := app.NewIssueTypesStep(cache, discardLogger())
		job := testJob()

		got, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, newFakeStore(), nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count := target.epicCount(); count != 1 {
			t.Fatalf("expected exactly one epic on the target, got %d", count)
		}

		// Re-running the same page must not create a second epic.
		retry := got
		retry.Page = domain.PageContext{StartAt: 0, HasMore: true, TotalProcessed: 0}
		_, err = step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, newFakeStore(), &retry))
		if err != nil {
			t.Fatalf("retry: unexpected error: %v", err)
		}
		if count := target.epicCount(); count != 1 {
			t.Fatalf("retry duplicated the epic, got %d", count)
		}
	})
}

func TestIssueTypesStepIdempotentRetry(t *testing.T) {
	t.Parallel()

	source := &fakeSource{issueTypes: issueTypesFixture(10)}
	target := &fakeTarget{project: domain.Project{IsWorkItemTypeEnabled: true}}
	store := newFakeStore()
	step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())
	job := testJob()

	if _, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, store, nil)); err != nil {
		t.Fatalf("first attempt: unexpected error: %v", err)
	}
	created := target.createdTypes

	// Same page again, as after a crash before the context was saved.
	if _, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, store, nil)); err != nil {
		t.Fatalf("retry: unexpected error: %v", err)
	}

	if target.createdTypes != created {
		t.Fatalf("retry created duplicates: %d then %d", created, target.createdTypes)
	}
	if target.updatedTypes != 10 {
		t.Fatalf("retry must converge via updates, got %d", target.updatedTypes)
	}
	if got := store.mappingCount(job.ID, domain.StepIssueTypes); got != 10 {
		t.Fatalf("expected 10 mappings after retry, got %d", got)
	}
}

func TestIssueTypesStepRetryAfterPartialPush(t *testing.T) {
	t.Parallel()

	// One draft matches an existing type, so the page splits into a
	// create batch of 9 and an update batch of 1. The update batch fails
	// while the creates land.
	source := &fakeSource{issueTypes: issueTypesFixture(10)}
	target := &fakeTarget{
		project: domain.Project{IsWorkItemTypeEnabled: true},
		workItemTypes: []domain.WorkItemType{
			{ID: "wit-pre", Name: "Type 0", ExternalID: "proj-1_res-1_10000"},
		},
		updateTypesErr: errors.New("target unavailable"),
	}
	store := newFakeStore()
	step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())
	job := testJob()

	_, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, store, nil))
	if err == nil {
		t.Fatal("expected push failure to surface")
	}
	if target.createdTypes != 9 {
		t.Fatalf("expected the create batch to land, got %d", target.createdTypes)
	}

	// The fault clears and the page is retried with the same cache.
	target.updateTypesErr = nil
	if _, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, store, nil)); err != nil {
		t.Fatalf("retry: unexpected error: %v", err)
	}

	if target.createdTypes != 9 {
		t.Fatalf("retry duplicated creates: %d", target.createdTypes)
	}
	if len(target.workItemTypes) != 10 {
		t.Fatalf("expected 10 types on the target, got %d", len(target.workItemTypes))
	}
	if target.updatedTypes != 10 {
		t.Fatalf("retry must converge via updates, got %d", target.updatedTypes)
	}
}

func TestIssueTypesStepPushFailure(t *testing.T) {
	t.Parallel()

	source := &fakeSource{issueTypes: issueTypesFixture(10)}
	target := &fakeTarget{
		project:        domain.Project{IsWorkItemTypeEnabled: true},
		createTypesErr: errors.New("target unavailable"),
	}
	store := newFakeStore()
	step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())
	job := testJob()

	_, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, store, nil))
	if err == nil {
		t.Fatal("expected push failure to surface")
	}
	if got := store.mappingCount(job.ID, domain.StepIssueTypes); got != 0 {
		t.Fatalf("failed page must write no mappings, got %d", got)
	}
}

func TestIssueTypesStepSnapshot(t *testing.T) {
	t.Parallel()

	source := &fakeSource{issueTypes: issueTypesFixture(3)}
	target := &fakeTarget{project: domain.Project{IsWorkItemTypeEnabled: true}}
	store := newFakeStore()
	step := app.NewIssueTypesStep(app.NewLookup(), discardLogger())
	job := testJob()

	if _, err := step.Execute(context.Background(), stepInput(job, source, target, &fakeFlags{enabled: true}, store, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := store.GetData(context.Background(), job.ID, domain.StepIssueTypes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 snapshot records, got %d", len(records))
	}
	for _, r := range records {
		if r["external_id"] == "" || r["id"] == "" {
			t.Fatalf("snapshot record missing identifiers: %+v", r)
		}
	}
}
