package migration

import (
	"context"
	"sync"
)

// Lookup memoizes idempotent remote reads per job and key, so repeated page
// invocations do not re-fetch unchanging facts (feature flags, project
// configuration). Entries live until the job finishes or a caller forgets
// them explicitly.
type Lookup struct {
	mu   sync.Mutex
	jobs map[string]map[string]any
}

func NewLookup() *Lookup {
	return &Lookup{jobs: make(map[string]map[string]any)}
}

func (l *Lookup) get(jobID, key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, ok := l.jobs[jobID]
	if !ok {
		return nil, false
	}
	v, ok := entries[key]
	return v, ok
}

func (l *Lookup) set(jobID, key string, value any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, ok := l.jobs[jobID]
	if !ok {
		entries = make(map[string]any)
		l.jobs[jobID] = entries
	}
	entries[key] = value
}

// Forget drops one memoized entry, forcing the next lookup to re-fetch.
// Steps use this after a push so the target inventory is re-read on the
// next page instead of served stale.
func (l *Lookup) Forget(jobID, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entries, ok := l.jobs[jobID]; ok {
		delete(entries, key)
	}
}

// Flush drops every entry for a job. Called when the job completes.
func (l *Lookup) Flush(jobID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.jobs, jobID)
}

// withLookup memoizes fetch under (jobID, key). Errors are not cached; the
// next caller retries the fetch.
func withLookup[T any](ctx context.Context, l *Lookup, jobID, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := l.get(jobID, key); ok {
		return v.(T), nil
	}

	value, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	l.set(jobID, key, value)
	return value, nil
}
