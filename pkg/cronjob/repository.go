package cronjob

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository is the durable store for job records. Implementations are
// assumed crash-consistent; cross-record consistency during a single
// logical operation is the Manager's responsibility.
type Repository interface {
	// Save inserts the record or replaces an existing one with the same id.
	Save(ctx context.Context, job *Job) error

	// Find returns the record with the given id, or ErrJobNotFound.
	Find(ctx context.Context, id uuid.UUID) (*Job, error)

	// FindByName returns the record with the given name, or ErrJobNotFound.
	FindByName(ctx context.Context, name string) (*Job, error)

	// All returns every record, ordered by creation time.
	All(ctx context.Context) ([]*Job, error)

	// Remove deletes the record, or returns ErrJobNotFound.
	Remove(ctx context.Context, id uuid.UUID) error
}

// MemoryRepository is a map-backed Repository for tests and embedded
// deployments.
type MemoryRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{jobs: make(map[uuid.UUID]*Job)}
}

func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *MemoryRepository) Find(_ context.Context, id uuid.UUID) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.Clone(), nil
}

func (r *MemoryRepository) FindByName(_ context.Context, name string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, j := range r.jobs {
		if j.Name == name {
			return j.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: name %q", ErrJobNotFound, name)
}

func (r *MemoryRepository) All(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].Name < out[k].Name
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) Remove(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	delete(r.jobs, id)
	return nil
}
