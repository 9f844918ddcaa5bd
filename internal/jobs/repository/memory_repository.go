package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amankumarsingh77/media-fetcher/internal/jobs"
	"github.com/amankumarsingh77/media-fetcher/internal/models"
	"github.com/google/uuid"
)

type memoryRepo struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewMemoryRepo() jobs.Repository {
	return NewMemoryRepoWithClock(time.Now)
}

// NewMemoryRepoWithClock lets tests control record ages.
func NewMemoryRepoWithClock(now func() time.Time) jobs.Repository {
	return &memoryRepo{
		jobs: make(map[string]*models.Job),
		now:  now,
	}
}

func (r *memoryRepo) Create(url, platform, requesterKey string) (*models.Job, error) {
	job := r.newJob(url, platform, requesterKey)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return job.Clone(), nil
}

// CreateWithinQuota counts the requester's non-terminal jobs and inserts under the same
// lock, so concurrent submissions cannot overshoot limit. A limit of zero or less is unlimited.
func (r *memoryRepo) CreateWithinQuota(url, platform, requesterKey string, limit int) (*models.Job, error) {
	job := r.newJob(url, platform, requesterKey)
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit > 0 {
		active := 0
		for _, j := range r.jobs {
			if j.RequesterKey == requesterKey && !j.Status.IsTerminal() {
				active++
			}
		}
		if active >= limit {
			return nil, models.NewQuotaError(fmt.Sprintf("too many active jobs (limit %d)", limit))
		}
	}
	r.jobs[job.ID] = job
	return job.Clone(), nil
}

func (r *memoryRepo) newJob(url, platform, requesterKey string) *models.Job {
	now := r.now()
	return &models.Job{
		ID:           uuid.NewString(),
		SourceURL:    url,
		Platform:     platform,
		RequesterKey: requesterKey,
		Status:       models.JobStatusPending,
		Stage:        models.StageValidation,
		StageRecord:  models.NewStageRecord(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (r *memoryRepo) Get(id string) (*models.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, models.NewNotFoundError("job not found")
	}
	return job.Clone(), nil
}

func (r *memoryRepo) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[id]
	return ok
}

// Update merges descriptive fields. Identity, timestamps and every lifecycle field
// are owned by the state machine and restored after fn runs.
func (r *memoryRepo) Update(id string, fn func(job *models.Job)) (*models.Job, error) {
	return r.mutate(id, func(job *models.Job) (*models.Job, error) {
		next := job.Clone()
		fn(next)
		next.ID = job.ID
		next.CreatedAt = job.CreatedAt
		next.Status = job.Status
		next.Stage = job.Stage
		next.StageRecord = job.StageRecord
		next.ProgressPercent = job.ProgressPercent
		next.OutputPath = job.OutputPath
		next.ArtifactKey = job.ArtifactKey
		next.ExpiresAt = job.ExpiresAt
		return next, nil
	})
}

func (r *memoryRepo) UpdateStage(id string, stage models.Stage, status models.StageStatus, message string) (*models.Job, error) {
	return r.mutate(id, func(job *models.Job) (*models.Job, error) {
		return models.ApplyStageUpdate(job, stage, status, message)
	})
}

func (r *memoryRepo) SetStageProgress(id string, stage models.Stage, percent float64) (*models.Job, error) {
	return r.mutate(id, func(job *models.Job) (*models.Job, error) {
		return models.ApplyStageProgress(job, stage, percent), nil
	})
}

func (r *memoryRepo) Transition(id string, event models.Event) (*models.Job, error) {
	return r.mutate(id, func(job *models.Job) (*models.Job, error) {
		return models.ApplyTransition(job, event)
	})
}

func (r *memoryRepo) mutate(id string, fn func(job *models.Job) (*models.Job, error)) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, models.NewNotFoundError("job not found")
	}
	next, err := fn(job)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()
	r.jobs[id] = next
	return next.Clone(), nil
}

func (r *memoryRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; !ok {
		return models.NewNotFoundError("job not found")
	}
	delete(r.jobs, id)
	return nil
}

// ListByRequester returns the requester's jobs, newest first.
func (r *memoryRepo) ListByRequester(requesterKey string) []*models.Job {
	r.mu.RLock()
	out := make([]*models.Job, 0)
	for _, job := range r.jobs {
		if job.RequesterKey == requesterKey {
			out = append(out, job.Clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ListExpired returns every job created more than expiry ago, whatever its status.
func (r *memoryRepo) ListExpired(expiry time.Duration) []*models.Job {
	cutoff := r.now().Add(-expiry)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Job, 0)
	for _, job := range r.jobs {
		if job.CreatedAt.Before(cutoff) {
			out = append(out, job.Clone())
		}
	}
	return out
}

func (r *memoryRepo) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, job := range r.jobs {
		if !job.Status.IsTerminal() {
			n++
		}
	}
	return n
}
