// Package cronjob implements the scheduler domain layer: logical job
// records, the backend abstraction that materializes them as entries in
// a periodic-execution mechanism, and the ordering rules between jobs.
//
// # Model
//
// A [Job] is the logical definition of a recurring task: a cron schedule,
// a command, an enabled flag, and optionally a dependency on another job
// (before_job_id / after_job_id). Enabled jobs are materialized as exactly
// one physical entry in a [Backend]; disabled and deleted jobs have none.
//
// # Backends
//
// [Backend] abstracts the physical store. Two implementations ship with
// the package: [CrontabBackend], which projects entries onto a user's
// system crontab, and [MemoryBackend], a substitutable in-memory fake.
// Backends are selected through [OpenBackend] by [BackendKind], a closed
// set checked at compile time. Every physical entry carries an opaque
// [Tag] derived from the job id; the backend never learns about
// dependency semantics.
//
// # Dependencies
//
// The underlying execution mechanism only understands "run at time T",
// not "run after job X finishes". The [Resolver] translates the declared
// before/after graph into command wrapping: a job other jobs wait on runs
// under a per-job lock file and touches a completion stamp, and a
// dependent job first blocks on that lock and checks the stamp before
// running its own command. Schedules are never rewritten. The dependency
// graph is kept acyclic at write time.
//
// # Manager
//
// [Manager] is the service layer tying it together: it enforces name
// uniqueness and graph invariants, computes effective commands through
// the resolver, drives the backend with all-or-nothing semantics (a
// failed materialization rolls back every entry written during the
// operation), and persists records through a [Repository].
//
//	repo := cronjob.NewMemoryRepository()
//	backend, _ := cronjob.OpenBackend(cronjob.BackendCrontab, cronjob.BackendContext{User: "openvair"})
//	mgr, _ := cronjob.NewManager(repo, backend, cronjob.WithLogger(log))
//
//	job, err := mgr.CreateJob(ctx, cronjob.Spec{
//	    Name:     "backup_daily",
//	    Schedule: "0 3 * * *",
//	    Command:  "backup.sh",
//	    Enabled:  true,
//	})
package cronjob
