package aggregate

import (
	"fmt"
	"sync"
	"time"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/google/uuid"
)

// DefaultRetention is how long finished jobs stay available.
const DefaultRetention = 30 * time.Minute

// Registry keeps jobs in memory. Callers only ever see copies.
type Registry struct {
	mu        sync.RWMutex
	jobs      map[string]Job
	retention time.Duration
	now       func() time.Time
}

// NewRegistry creates a registry that forgets finished jobs after retention.
func NewRegistry(retention time.Duration) *Registry {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Registry{
		jobs:      map[string]Job{},
		retention: retention,
		now:       time.Now,
	}
}

// Create registers a new job for files.
func (r *Registry) Create(query []string, files []domain.FileRecord) Job {
	now := r.now()
	j := Job{
		ID:         uuid.NewString(),
		Query:      query,
		Files:      files,
		TotalFiles: len(files),
		Status:     StatusInitializing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(now)
	r.jobs[j.ID] = j.Snapshot()
	return j.Snapshot()
}

// Update stores the latest state of a job.
func (r *Registry) Update(j Job) {
	j = j.Snapshot()
	j.UpdatedAt = r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j
}

// Get returns a copy of the job.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job %s: %w", id, domain.ErrNotFound)
	}
	return j.Snapshot(), nil
}

// Artifact returns artifact n of a job.
func (r *Registry) Artifact(id string, n int) (Artifact, error) {
	j, err := r.Get(id)
	if err != nil {
		return Artifact{}, err
	}
	if n < 0 || n >= len(j.Artifacts) {
		return Artifact{}, fmt.Errorf("job %s artifact %d: %w", id, n, domain.ErrNotFound)
	}
	return j.Artifacts[n], nil
}

// Prune drops finished jobs older than the retention and returns how many
// were removed.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pruneLocked(r.now())
}

func (r *Registry) pruneLocked(now time.Time) int {
	n := 0
	for id, j := range r.jobs {
		if j.Status.Finished() && now.Sub(j.UpdatedAt) > r.retention {
			delete(r.jobs, id)
			n++
		}
	}
	return n
}

// Len returns the number of jobs held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
