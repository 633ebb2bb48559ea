package cronjob

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// tagPrefix marks crontab lines owned by this system.
const tagPrefix = "cronjob:"

// Tag is the opaque identifier joining a job record to its physical
// entry. The backend treats it as an opaque string.
type Tag string

// TagFor derives the tag for a job id.
func TagFor(id uuid.UUID) Tag {
	return Tag(tagPrefix + id.String())
}

// JobID recovers the job id a tag was derived from.
func (t Tag) JobID() (uuid.UUID, bool) {
	raw, ok := strings.CutPrefix(string(t), tagPrefix)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// EntrySpec is the concrete, already-resolved definition of one
// physical entry: a cron time expression and the effective command.
type EntrySpec struct {
	Schedule string
	Command  string
}

// Entry is a physical entry as seen by the backend.
type Entry struct {
	Tag      Tag
	Schedule string
	Command  string
}

// Backend abstracts the periodic-execution mechanism. Implementations
// own the mapping from tag to physical entry and apply every mutation
// through a single scoped write so a mid-operation failure leaves the
// underlying store unchanged.
//
// Backends know nothing about job dependencies; they install exactly
// what they are given.
type Backend interface {
	// Create installs one physical entry under the given tag.
	// Returns ErrEntryExists if the tag is already present and
	// ErrBackendWrite if the store cannot be written.
	Create(ctx context.Context, tag Tag, spec EntrySpec) (Entry, error)

	// Get returns the entry carrying the tag, or ErrEntryNotFound.
	Get(ctx context.Context, tag Tag) (Entry, error)

	// List returns all entries owned by this backend instance.
	// Order carries no meaning.
	List(ctx context.Context) ([]Entry, error)

	// Edit atomically replaces an existing entry's schedule and command
	// in place. Returns ErrEntryNotFound if the tag is absent.
	Edit(ctx context.Context, tag Tag, spec EntrySpec) (Entry, error)

	// Delete removes the entry. Returns ErrEntryNotFound if absent.
	Delete(ctx context.Context, tag Tag) error
}
