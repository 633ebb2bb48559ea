package cronjob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miem-project-2259/openvair/pkg/schedule"
)

// lockRetries bounds how often a mutating operation re-acquires locks
// when a concurrent edit changed the neighbor set between the unlocked
// read and the lock acquisition.
const lockRetries = 8

// Manager is the scheduler service layer. It owns the invariants
// between logical job records and physical backend entries: a job is
// materialized iff it is enabled, names are unique, the dependency
// graph stays acyclic, and no operation leaves partial state behind.
//
// Mutating operations serialize on per-job locks covering the job and
// every dependency neighbor, acquired in id order so two overlapping
// operations cannot deadlock.
type Manager struct {
	repo     Repository
	backend  Backend
	resolver *Resolver
	log      *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewManager creates a manager over the given repository and backend.
func NewManager(repo Repository, backend Backend, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if backend == nil {
		return nil, ErrBackendRequired
	}

	m := &Manager{
		repo:     repo,
		backend:  backend,
		resolver: NewResolver(),
		log:      discardLogger(),
		now:      time.Now,
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CreateJob registers a new job and, when enabled, materializes it in
// the backend. On any failure the operation is rolled back completely:
// no record is persisted and no entry survives in the backend. The
// returned error wraps ErrJobCreationFailed with the cause.
func (m *Manager) CreateJob(ctx context.Context, spec Spec) (*Job, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	lockIDs := []uuid.UUID{id}
	if spec.BeforeJobID != nil {
		lockIDs = append(lockIDs, *spec.BeforeJobID)
	}
	if spec.AfterJobID != nil {
		lockIDs = append(lockIDs, *spec.AfterJobID)
	}
	unlock := m.lockAll(lockIDs)
	defer unlock()

	if _, err := m.repo.FindByName(ctx, strings.TrimSpace(spec.Name)); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrNameConflict, spec.Name)
	} else if !errors.Is(err, ErrJobNotFound) {
		return nil, err
	}

	jobs, err := m.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	job := &Job{
		ID:          id,
		Name:        strings.TrimSpace(spec.Name),
		Description: spec.Description,
		Schedule:    spec.Schedule,
		Command:     spec.Command,
		Enabled:     spec.Enabled,
		BeforeJobID: cloneRef(spec.BeforeJobID),
		AfterJobID:  cloneRef(spec.AfterJobID),
		Status:      StatusDefined,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if ref, ok := job.DependencyRef(); ok {
		if findJob(jobs, ref) == nil {
			return nil, fmt.Errorf("%w: referenced job %s does not exist", ErrValidation, ref)
		}
		// A fresh node cannot close a cycle, but the check is cheap and
		// keeps create and edit on the same path.
		from, to := job.edge()
		if err := m.resolver.CheckEdge(jobs, from, to); err != nil {
			return nil, err
		}
	}

	graph := append(slices.Clone(jobs), job)
	job.EffectiveCommand = m.resolver.EffectiveCommand(job, graph)

	var undos []undoFunc
	if job.Enabled {
		if _, err := m.backend.Create(ctx, TagFor(id), EntrySpec{Schedule: job.Schedule, Command: job.EffectiveCommand}); err != nil {
			return nil, errors.Join(ErrJobCreationFailed, err)
		}
		undos = append(undos, func(ctx context.Context) error {
			return m.backend.Delete(ctx, TagFor(id))
		})
		job.Status = StatusMaterialized
	}

	changes, err := m.rematerialize(ctx, graph, m.resolver.Affected(id, graph), &undos)
	if err != nil {
		m.rollback(ctx, undos)
		return nil, errors.Join(ErrJobCreationFailed, err)
	}

	if err := m.repo.Save(ctx, job); err != nil {
		m.rollback(ctx, undos)
		return nil, errors.Join(ErrJobCreationFailed, err)
	}
	undos = append(undos, func(ctx context.Context) error {
		return m.repo.Remove(ctx, id)
	})
	if err := m.persist(ctx, changes, &undos); err != nil {
		m.rollback(ctx, undos)
		return nil, errors.Join(ErrJobCreationFailed, err)
	}

	m.log.InfoContext(ctx, "job created",
		slog.String("job_id", id.String()),
		slog.String("name", job.Name),
		slog.Bool("enabled", job.Enabled),
	)
	m.refreshNextRun(job)
	return job.Clone(), nil
}

// GetJob returns the job with the given id.
func (m *Manager) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := m.repo.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	m.refreshNextRun(job)
	return job, nil
}

// ListJobs returns every job record. Pagination belongs to the caller.
func (m *Manager) ListJobs(ctx context.Context) ([]*Job, error) {
	jobs, err := m.repo.All(ctx)
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		m.refreshNextRun(j)
	}
	return jobs, nil
}

// EditJob merges the provided fields into the job, re-validates name
// uniqueness and graph acyclicity where relevant, and re-materializes
// the job and any dependency neighbor whose effective command changed.
// Backend failures roll the whole edit back.
func (m *Manager) EditJob(ctx context.Context, id uuid.UUID, patch Patch) (*Job, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if ref, ok := patchRef(patch); ok && ref == id {
		return nil, fmt.Errorf("%w: job %s cannot reference itself", ErrValidation, id)
	}

	current, unlock, err := m.lockNeighborhood(ctx, id, patchRefIDs(patch))
	if err != nil {
		return nil, err
	}
	defer unlock()

	merged := patch.apply(current)
	merged.Name = strings.TrimSpace(merged.Name)

	if merged.Name != current.Name {
		if other, err := m.repo.FindByName(ctx, merged.Name); err == nil && other.ID != id {
			return nil, fmt.Errorf("%w: %q", ErrNameConflict, merged.Name)
		} else if err != nil && !errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	}

	jobs, err := m.repo.All(ctx)
	if err != nil {
		return nil, err
	}

	if ref, ok := merged.DependencyRef(); ok {
		if ref == id {
			return nil, fmt.Errorf("%w: job %s cannot reference itself", ErrValidation, id)
		}
		if findJob(jobs, ref) == nil {
			return nil, fmt.Errorf("%w: referenced job %s does not exist", ErrValidation, ref)
		}
	}

	oldFrom, oldTo := current.edge()
	newFrom, newTo := merged.edge()
	if (newFrom != uuid.Nil || newTo != uuid.Nil) && (newFrom != oldFrom || newTo != oldTo) {
		// Check against the graph without this job's own edge; edges from
		// dependents pointing at it stay in place.
		stripped := merged.Clone()
		stripped.BeforeJobID, stripped.AfterJobID = nil, nil
		if err := m.resolver.CheckEdge(replaceJob(jobs, stripped), newFrom, newTo); err != nil {
			return nil, err
		}
	}

	graph := replaceJob(jobs, merged)
	merged.EffectiveCommand = m.resolver.EffectiveCommand(merged, graph)
	merged.UpdatedAt = m.now()

	var undos []undoFunc
	if err := m.applyEntryDiff(ctx, current, merged); err != nil {
		m.rollback(ctx, undos)
		return nil, fmt.Errorf("cronjob: edit job %s: %w", id, err)
	}
	undos = append(undos, m.entryDiffUndo(current))

	affected := unionIDs(m.resolver.Affected(id, jobs), m.resolver.Affected(id, graph))
	changes, err := m.rematerialize(ctx, graph, affected, &undos)
	if err != nil {
		m.rollback(ctx, undos)
		return nil, fmt.Errorf("cronjob: edit job %s: %w", id, err)
	}

	prev := current.Clone()
	if err := m.repo.Save(ctx, merged); err != nil {
		m.rollback(ctx, undos)
		return nil, err
	}
	undos = append(undos, func(ctx context.Context) error {
		return m.repo.Save(ctx, prev)
	})
	if err := m.persist(ctx, changes, &undos); err != nil {
		m.rollback(ctx, undos)
		return nil, err
	}

	m.log.InfoContext(ctx, "job updated", slog.String("job_id", id.String()))
	m.refreshNextRun(merged)
	return merged.Clone(), nil
}

// DeleteJob removes the physical entry first, then the record. Jobs
// depending on the deleted one get their reference cleared and their
// effective command reverted to the unguarded form.
func (m *Manager) DeleteJob(ctx context.Context, id uuid.UUID) error {
	job, unlock, err := m.lockNeighborhood(ctx, id, nil)
	if err != nil {
		return err
	}
	defer unlock()

	jobs, err := m.repo.All(ctx)
	if err != nil {
		return err
	}
	affected := m.resolver.Affected(id, jobs)

	// The graph as it will look after the delete: this job gone, every
	// reference to it cleared.
	var graph []*Job
	var dependents []*Job
	for _, j := range jobs {
		if j.ID == id {
			continue
		}
		c := j.Clone()
		if ref, ok := c.DependencyRef(); ok && ref == id {
			c.BeforeJobID, c.AfterJobID = nil, nil
			c.UpdatedAt = m.now()
			dependents = append(dependents, c)
		}
		graph = append(graph, c)
	}

	var undos []undoFunc
	if job.Status == StatusMaterialized {
		old, err := m.backend.Get(ctx, TagFor(id))
		switch {
		case err == nil:
			if err := m.backend.Delete(ctx, TagFor(id)); err != nil {
				return err
			}
			undos = append(undos, func(ctx context.Context) error {
				_, err := m.backend.Create(ctx, old.Tag, EntrySpec{Schedule: old.Schedule, Command: old.Command})
				return err
			})
		case errors.Is(err, ErrEntryNotFound):
			// Entry already gone; nothing physical to remove.
		default:
			return err
		}
	}

	changes, err := m.rematerialize(ctx, graph, affected, &undos)
	if err != nil {
		m.rollback(ctx, undos)
		return err
	}

	// Dependents persist even when rematerialize saw no command change:
	// the cleared reference itself must land in the store.
	for _, d := range dependents {
		if !containsChange(changes, d.ID) {
			prev := findJob(jobs, d.ID)
			changes = append(changes, recordChange{job: d, prev: prev})
		}
	}

	if err := m.persist(ctx, changes, &undos); err != nil {
		m.rollback(ctx, undos)
		return err
	}
	if err := m.repo.Remove(ctx, id); err != nil {
		m.rollback(ctx, undos)
		return err
	}

	m.log.InfoContext(ctx, "job deleted",
		slog.String("job_id", id.String()),
		slog.Int("dependents_cleared", len(dependents)),
	)
	return nil
}

// --- internals ---

type undoFunc func(ctx context.Context) error

// recordChange pairs an updated record with its previous state for undo.
type recordChange struct {
	job  *Job
	prev *Job
}

// rematerialize recomputes the effective command of every job in ids
// against graph and pushes changed entries to the backend, recording
// undo steps. Records are mutated in place; persisting them is the
// caller's job.
func (m *Manager) rematerialize(ctx context.Context, graph []*Job, ids []uuid.UUID, undos *[]undoFunc) ([]recordChange, error) {
	var changes []recordChange
	for _, nid := range ids {
		n := findJob(graph, nid)
		if n == nil {
			continue
		}
		newCmd := m.resolver.EffectiveCommand(n, graph)
		if newCmd == n.EffectiveCommand {
			continue
		}
		prev := n.Clone()
		n.EffectiveCommand = newCmd
		n.UpdatedAt = m.now()

		if n.Status == StatusMaterialized {
			tag := TagFor(n.ID)
			old, err := m.backend.Get(ctx, tag)
			if err != nil {
				return nil, err
			}
			if _, err := m.backend.Edit(ctx, tag, EntrySpec{Schedule: n.Schedule, Command: newCmd}); err != nil {
				return nil, err
			}
			*undos = append(*undos, func(ctx context.Context) error {
				_, err := m.backend.Edit(ctx, tag, EntrySpec{Schedule: old.Schedule, Command: old.Command})
				return err
			})
		}
		changes = append(changes, recordChange{job: n, prev: prev})
	}
	return changes, nil
}

// applyEntryDiff reconciles the job's own backend entry with the merged
// desired state and flips the lifecycle status accordingly.
func (m *Manager) applyEntryDiff(ctx context.Context, current, merged *Job) error {
	tag := TagFor(merged.ID)
	spec := EntrySpec{Schedule: merged.Schedule, Command: merged.EffectiveCommand}

	switch {
	case current.Status == StatusMaterialized && merged.Enabled:
		if merged.Schedule == current.Schedule && merged.EffectiveCommand == current.EffectiveCommand {
			return nil
		}
		_, err := m.backend.Edit(ctx, tag, spec)
		return err
	case current.Status == StatusMaterialized && !merged.Enabled:
		if err := m.backend.Delete(ctx, tag); err != nil {
			return err
		}
		merged.Status = StatusDefined
		return nil
	case current.Status != StatusMaterialized && merged.Enabled:
		if _, err := m.backend.Create(ctx, tag, spec); err != nil {
			return err
		}
		merged.Status = StatusMaterialized
		return nil
	default:
		// Disabled before and after: the backend is never touched.
		return nil
	}
}

// entryDiffUndo restores the job's own entry to its pre-edit state.
func (m *Manager) entryDiffUndo(current *Job) undoFunc {
	prev := current.Clone()
	return func(ctx context.Context) error {
		tag := TagFor(prev.ID)
		spec := EntrySpec{Schedule: prev.Schedule, Command: prev.EffectiveCommand}
		if prev.Status == StatusMaterialized {
			if _, err := m.backend.Edit(ctx, tag, spec); err == nil {
				return nil
			} else if !errors.Is(err, ErrEntryNotFound) {
				return err
			}
			_, err := m.backend.Create(ctx, tag, spec)
			return err
		}
		err := m.backend.Delete(ctx, tag)
		if errors.Is(err, ErrEntryNotFound) {
			return nil
		}
		return err
	}
}

// persist saves changed neighbor records, recording repo-level undo.
func (m *Manager) persist(ctx context.Context, changes []recordChange, undos *[]undoFunc) error {
	for _, ch := range changes {
		if err := m.repo.Save(ctx, ch.job); err != nil {
			return err
		}
		prev := ch.prev
		*undos = append(*undos, func(ctx context.Context) error {
			if prev == nil {
				return nil
			}
			return m.repo.Save(ctx, prev)
		})
	}
	return nil
}

// rollback unwinds recorded steps in reverse order. Undo failures are
// logged, not returned: the original error is what the caller needs.
func (m *Manager) rollback(ctx context.Context, undos []undoFunc) {
	for i := len(undos) - 1; i >= 0; i-- {
		if err := undos[i](ctx); err != nil {
			m.log.ErrorContext(ctx, "rollback step failed", slog.String("error", err.Error()))
		}
	}
}

// lockNeighborhood locks the job and its dependency neighbors, retrying
// when a concurrent edit changed the neighbor set between the unlocked
// read and the acquisition.
func (m *Manager) lockNeighborhood(ctx context.Context, id uuid.UUID, extra []uuid.UUID) (*Job, func(), error) {
	for range lockRetries {
		jobs, err := m.repo.All(ctx)
		if err != nil {
			return nil, nil, err
		}

		lockIDs := append([]uuid.UUID{id}, extra...)
		lockIDs = append(lockIDs, m.resolver.Affected(id, jobs)...)
		unlock := m.lockAll(lockIDs)

		// Verify the neighbor set under the lock.
		job, err := m.repo.Find(ctx, id)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		jobs, err = m.repo.All(ctx)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if idsCovered(lockIDs, m.resolver.Affected(id, jobs)) {
			return job, unlock, nil
		}
		unlock()
	}
	return nil, nil, fmt.Errorf("cronjob: job %s: dependency neighbors kept changing, giving up lock acquisition", id)
}

// lockAll acquires per-job locks in id order, preventing deadlock when
// two operations cover overlapping neighborhoods.
func (m *Manager) lockAll(ids []uuid.UUID) func() {
	uniq := unionIDs(ids, nil)
	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		mu := m.lockFor(id)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (m *Manager) lockFor(id uuid.UUID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	return mu
}

func (m *Manager) refreshNextRun(j *Job) {
	if !j.Enabled {
		j.NextRun = nil
		return
	}
	next, err := schedule.Next(j.Schedule, m.now())
	if err != nil {
		return
	}
	j.NextRun = &next
}

// edge returns the dependency edge this job declares, as (from, to):
// from must complete before to's occurrence begins. Both zero when the
// job declares none.
func (j *Job) edge() (from, to uuid.UUID) {
	switch {
	case j.BeforeJobID != nil:
		return j.ID, *j.BeforeJobID
	case j.AfterJobID != nil:
		return *j.AfterJobID, j.ID
	default:
		return uuid.Nil, uuid.Nil
	}
}

func patchRef(p Patch) (uuid.UUID, bool) {
	switch {
	case p.BeforeJobID != nil:
		return *p.BeforeJobID, true
	case p.AfterJobID != nil:
		return *p.AfterJobID, true
	default:
		return uuid.Nil, false
	}
}

func patchRefIDs(p Patch) []uuid.UUID {
	if ref, ok := patchRef(p); ok {
		return []uuid.UUID{ref}
	}
	return nil
}

func cloneRef(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

func findJob(jobs []*Job, id uuid.UUID) *Job {
	for _, j := range jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

func replaceJob(jobs []*Job, j *Job) []*Job {
	out := make([]*Job, 0, len(jobs)+1)
	replaced := false
	for _, cur := range jobs {
		if cur.ID == j.ID {
			out = append(out, j)
			replaced = true
			continue
		}
		out = append(out, cur)
	}
	if !replaced {
		out = append(out, j)
	}
	return out
}

func containsChange(changes []recordChange, id uuid.UUID) bool {
	for _, ch := range changes {
		if ch.job.ID == id {
			return true
		}
	}
	return false
}

// unionIDs merges, dedupes and sorts id sets.
func unionIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(a)+len(b))
	out := make([]uuid.UUID, 0, len(a)+len(b))
	for _, id := range slices.Concat(a, b) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	slices.SortFunc(out, func(x, y uuid.UUID) int {
		return bytes.Compare(x[:], y[:])
	})
	return out
}

func idsCovered(held, needed []uuid.UUID) bool {
	set := make(map[uuid.UUID]bool, len(held))
	for _, id := range held {
		set[id] = true
	}
	for _, id := range needed {
		if !set[id] {
			return false
		}
	}
	return true
}
