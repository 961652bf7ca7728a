package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"resumescan/internal/types"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Jobs are copied on the way in and out so
// callers never share state with the map.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
	now  func() time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*types.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Create(_ context.Context, params CreateParams) (*types.Job, error) {
	params, err := params.Normalize()
	if err != nil {
		return nil, err
	}

	now := m.now()
	job := &types.Job{
		ID:             uuid.NewString(),
		OwnerID:        params.OwnerID,
		FileReference:  params.FileReference,
		FileName:       params.FileName,
		Title:          params.Title,
		JobDescription: params.JobDescription,
		CompanyName:    params.CompanyName,
		CreatedAt:      now,
		UpdatedAt:      now,
		State:          types.Pending{},
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.Clone(), nil
}

func (m *Memory) Get(_ context.Context, id string) (*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, notFound(id)
	}
	return job.Clone(), nil
}

func (m *Memory) SetStatus(_ context.Context, id string, status types.Status, reason string) error {
	state, err := stateFor(status, reason, m.now)
	if err != nil {
		return err
	}
	return m.update(id, func(job *types.Job) error {
		job.State = state
		return nil
	})
}

func (m *Memory) Fail(_ context.Context, id, code, reason string) error {
	return m.update(id, func(job *types.Job) error {
		job.State = types.Failed{Code: code, Reason: reason, FailedAt: m.now()}
		return nil
	})
}

func (m *Memory) BeginProcessing(_ context.Context, id string) (*types.Job, error) {
	var out *types.Job
	err := m.update(id, func(job *types.Job) error {
		switch current := job.Status(); current {
		case types.StatusPending, types.StatusFailed:
			job.State = types.Processing{StartedAt: m.now()}
			out = job.Clone()
			return nil
		default:
			return conflict(id, current)
		}
	})
	return out, err
}

func (m *Memory) Complete(_ context.Context, id string, result types.AnalysisResult) error {
	return m.update(id, func(job *types.Job) error {
		if current := job.Status(); current != types.StatusProcessing {
			return conflict(id, current)
		}
		job.State = types.Completed{Result: result.Clone(), CompletedAt: m.now()}
		return nil
	})
}

func (m *Memory) ListByOwner(_ context.Context, ownerID string, limit int) ([]*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*types.Job
	for _, job := range m.jobs {
		if job.OwnerID == ownerID {
			jobs = append(jobs, job.Clone())
		}
	}
	slices.SortFunc(jobs, func(a, b *types.Job) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if limit = clampLimit(limit); len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}

// update applies fn to the stored job under the write lock. The job is
// only modified when fn succeeds.
func (m *Memory) update(id string, fn func(*types.Job) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return notFound(id)
	}
	next := job.Clone()
	next.UpdatedAt = m.now()
	if err := fn(next); err != nil {
		return err
	}
	m.jobs[id] = next
	return nil
}
