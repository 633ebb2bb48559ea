package cronjob

import "errors"

// Sentinel errors for scheduler domain operations.
var (
	// ErrValidation is returned for malformed or conflicting input, such as
	// both dependency references set, a self-reference, or a reference to a
	// job that does not exist.
	ErrValidation = errors.New("cronjob: invalid job specification")

	// ErrCyclicDependency is returned when a before/after edge would close
	// a cycle in the dependency graph.
	ErrCyclicDependency = errors.New("cronjob: cyclic job dependency")

	// ErrNameConflict is returned when a job name is already taken by
	// another job.
	ErrNameConflict = errors.New("cronjob: job name already in use")

	// ErrJobNotFound is returned when no job with the given id exists.
	ErrJobNotFound = errors.New("cronjob: job not found")

	// ErrJobCreationFailed is returned when a create could not be completed
	// and has been rolled back. It wraps the underlying cause.
	ErrJobCreationFailed = errors.New("cronjob: job creation failed")

	// ErrEntryNotFound is returned when no physical entry carries the
	// requested tag.
	ErrEntryNotFound = errors.New("cronjob: scheduler entry not found")

	// ErrEntryExists is returned when creating an entry whose tag is
	// already present in the backend.
	ErrEntryExists = errors.New("cronjob: scheduler entry already exists")

	// ErrBackendRead is returned when the physical store cannot be read.
	ErrBackendRead = errors.New("cronjob: scheduler backend read failed")

	// ErrBackendWrite is returned when the physical store rejects a write.
	ErrBackendWrite = errors.New("cronjob: scheduler backend write failed")

	// ErrUnknownBackend is returned by OpenBackend for an unregistered
	// backend kind.
	ErrUnknownBackend = errors.New("cronjob: unknown backend kind")

	// ErrRepositoryRequired is returned when a manager is constructed
	// without a repository.
	ErrRepositoryRequired = errors.New("cronjob: repository is required")

	// ErrBackendRequired is returned when a manager is constructed without
	// a backend.
	ErrBackendRequired = errors.New("cronjob: backend is required")
)
