package cronjob

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
)

// Resolver translates the logical before/after graph into something the
// backend can express. The backend only understands "run at time T", so
// ordering is enforced at trigger time by wrapping commands:
//
//   - a job other jobs wait on runs under an exclusive per-job lock file
//     and touches a completion stamp when its command succeeds;
//   - a dependent job first blocks on each upstream lock (upstream not
//     currently running) and requires the stamp (upstream has completed
//     its most recent occurrence), then runs its own command.
//
// Schedules are never rewritten; only the materialized command changes.
// Dependency edges read `u -> v`: u must complete before v's occurrence
// begins.
type Resolver struct {
	stateDir string
	wait     time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStateDir sets the directory holding lock and stamp files.
// It must be writable by the account the jobs run as.
func WithStateDir(dir string) ResolverOption {
	return func(r *Resolver) {
		if dir != "" {
			r.stateDir = dir
		}
	}
}

// WithGuardWait bounds how long a dependent job waits for a running
// upstream occurrence before giving up the trigger.
func WithGuardWait(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.wait = d
		}
	}
}

// NewResolver creates a resolver with defaults suitable for a system
// deployment: state under /var/lib/openvair/scheduler, 15 minute guard
// wait.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		stateDir: "/var/lib/openvair/scheduler",
		wait:     15 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckEdge verifies that adding or moving the edge from -> to keeps the
// graph acyclic. The jobs slice is the graph WITHOUT the proposed edge
// (the job being written contributes its other, unchanged edges through
// its dependents). Detection is a depth-first walk from the edge's
// target back to its source.
func (r *Resolver) CheckEdge(jobs []*Job, from, to uuid.UUID) error {
	adj := adjacency(jobs)
	if reaches(adj, to, from, make(map[uuid.UUID]bool)) {
		return fmt.Errorf("%w: %s -> %s closes a cycle", ErrCyclicDependency, from, to)
	}
	return nil
}

// EffectiveCommand computes the command to materialize for job within
// the given graph: the raw command for unconstrained jobs, otherwise the
// guarded/tracked composition described on Resolver.
func (r *Resolver) EffectiveCommand(job *Job, jobs []*Job) string {
	cmd := job.Command
	ups := r.upstreamIDs(job, jobs)
	tracked := r.isUpstream(job, jobs)
	if len(ups) > 0 {
		cmd = r.guard(cmd, ups)
	}
	if tracked {
		cmd = r.track(cmd, job.ID)
	}
	if len(ups) > 0 || tracked {
		// The state dir must exist before flock can open a lock file
		// under it, so it is created ahead of any lock or stamp access.
		cmd = fmt.Sprintf("mkdir -p %s && %s", r.stateDir, cmd)
	}
	return cmd
}

// Affected returns the ids of every job sharing a dependency edge with
// id: all of them need their effective command recomputed when id is
// created, edited or deleted.
func (r *Resolver) Affected(id uuid.UUID, jobs []*Job) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	add := func(partner uuid.UUID) {
		if partner != id && !seen[partner] {
			seen[partner] = true
			out = append(out, partner)
		}
	}
	for _, j := range jobs {
		if j.ID == id {
			if ref, ok := j.DependencyRef(); ok {
				add(ref)
			}
			continue
		}
		if ref, ok := j.DependencyRef(); ok && ref == id {
			add(j.ID)
		}
	}
	sortIDs(out)
	return out
}

// upstreamIDs returns the jobs that must complete before job may start,
// sorted for deterministic command rendering.
func (r *Resolver) upstreamIDs(job *Job, jobs []*Job) []uuid.UUID {
	var ups []uuid.UUID
	if job.AfterJobID != nil {
		ups = append(ups, *job.AfterJobID)
	}
	for _, other := range jobs {
		if other.ID == job.ID {
			continue
		}
		if other.BeforeJobID != nil && *other.BeforeJobID == job.ID {
			ups = append(ups, other.ID)
		}
	}
	sortIDs(ups)
	return ups
}

// isUpstream reports whether any job waits on this one.
func (r *Resolver) isUpstream(job *Job, jobs []*Job) bool {
	if job.BeforeJobID != nil {
		return true
	}
	for _, other := range jobs {
		if other.ID == job.ID {
			continue
		}
		if other.AfterJobID != nil && *other.AfterJobID == job.ID {
			return true
		}
	}
	return false
}

// guard prefixes cmd with one check pair per upstream: acquire and
// immediately release the upstream lock with a bounded wait, then
// require its completion stamp.
func (r *Resolver) guard(cmd string, ups []uuid.UUID) string {
	checks := make([]string, 0, len(ups)+1)
	for _, up := range ups {
		checks = append(checks, fmt.Sprintf(
			"flock -w %d %s true && test -f %s",
			int(r.wait.Seconds()), r.lockPath(up), r.stampPath(up),
		))
	}
	return fmt.Sprintf("%s && %s", joinAnd(checks), cmd)
}

// track wraps cmd so the whole occurrence holds the job's lock and
// stamps completion on success. The stamp is cleared before the command
// runs: a surviving stamp from an earlier occurrence must not vouch for
// one that failed. The lock is taken non-blocking: an occurrence that
// fires while the previous one still runs is skipped rather than
// stacked.
func (r *Resolver) track(cmd string, id uuid.UUID) string {
	script := fmt.Sprintf(
		"rm -f %s && %s && touch %s",
		r.stampPath(id), cmd, r.stampPath(id),
	)
	return fmt.Sprintf("flock -n %s %s", r.lockPath(id), shellquote.Join("sh", "-c", script))
}

func (r *Resolver) lockPath(id uuid.UUID) string {
	return filepath.Join(r.stateDir, id.String()+".lock")
}

func (r *Resolver) stampPath(id uuid.UUID) string {
	return filepath.Join(r.stateDir, id.String()+".done")
}

func joinAnd(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += " && " + p
	}
	return out
}

// adjacency builds the edge map: u -> v means u completes before v.
func adjacency(jobs []*Job) map[uuid.UUID][]uuid.UUID {
	adj := make(map[uuid.UUID][]uuid.UUID, len(jobs))
	for _, j := range jobs {
		if j.BeforeJobID != nil {
			adj[j.ID] = append(adj[j.ID], *j.BeforeJobID)
		}
		if j.AfterJobID != nil {
			adj[*j.AfterJobID] = append(adj[*j.AfterJobID], j.ID)
		}
	}
	return adj
}

func reaches(adj map[uuid.UUID][]uuid.UUID, from, target uuid.UUID, visited map[uuid.UUID]bool) bool {
	if from == target {
		return true
	}
	visited[from] = true
	for _, next := range adj[from] {
		if !visited[next] && reaches(adj, next, target, visited) {
			return true
		}
	}
	return false
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
