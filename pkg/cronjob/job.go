package cronjob

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miem-project-2259/openvair/pkg/schedule"
)

// Status describes a job's lifecycle state.
type Status string

const (
	// StatusDefined means the record exists but has no physical entry.
	StatusDefined Status = "defined"
	// StatusMaterialized means the record is backed by exactly one
	// physical entry in the scheduler backend.
	StatusMaterialized Status = "materialized"
)

// Job is the logical definition of a recurring task.
//
// Command holds the command exactly as submitted; EffectiveCommand is
// what gets materialized, possibly wrapped with completion-guard
// plumbing when the job participates in a dependency edge.
type Job struct {
	ID          uuid.UUID
	Name        string
	Description string
	Schedule    string
	Command     string
	// EffectiveCommand is derived by the resolver and never set by clients.
	EffectiveCommand string
	Enabled          bool
	// BeforeJobID and AfterJobID are mutually exclusive. BeforeJobID = X
	// means this job completes before X's next occurrence may start;
	// AfterJobID = X means this job does not start until X has completed.
	BeforeJobID *uuid.UUID
	AfterJobID  *uuid.UUID
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// LastRun and NextRun are observed/derived, not client-settable.
	LastRun *time.Time
	NextRun *time.Time
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (j *Job) Clone() *Job {
	c := *j
	if j.BeforeJobID != nil {
		id := *j.BeforeJobID
		c.BeforeJobID = &id
	}
	if j.AfterJobID != nil {
		id := *j.AfterJobID
		c.AfterJobID = &id
	}
	if j.LastRun != nil {
		t := *j.LastRun
		c.LastRun = &t
	}
	if j.NextRun != nil {
		t := *j.NextRun
		c.NextRun = &t
	}
	return &c
}

// DependencyRef returns the referenced job id, whichever of the two
// dependency fields is set.
func (j *Job) DependencyRef() (uuid.UUID, bool) {
	switch {
	case j.BeforeJobID != nil:
		return *j.BeforeJobID, true
	case j.AfterJobID != nil:
		return *j.AfterJobID, true
	default:
		return uuid.Nil, false
	}
}

// Spec is the validated input for creating a job. Field syntax and
// command safety filtering happen at the request boundary; Validate
// re-checks only the invariants the domain layer owns.
type Spec struct {
	Name        string
	Description string
	Schedule    string
	Command     string
	Enabled     bool
	BeforeJobID *uuid.UUID
	AfterJobID  *uuid.UUID
}

// Validate checks domain invariants on the creation input.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(s.Command) == "" {
		return fmt.Errorf("%w: command is required", ErrValidation)
	}
	if s.BeforeJobID != nil && s.AfterJobID != nil {
		return fmt.Errorf("%w: before_job_id and after_job_id are mutually exclusive", ErrValidation)
	}
	if err := schedule.Validate(s.Schedule); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// Patch is a partial update: nil fields are left untouched.
// ClearDependency removes an existing before/after reference; it cannot
// be combined with setting a new one.
type Patch struct {
	Name            *string
	Description     *string
	Schedule        *string
	Command         *string
	Enabled         *bool
	BeforeJobID     *uuid.UUID
	AfterJobID      *uuid.UUID
	ClearDependency bool
}

// Validate checks domain invariants on the provided fields.
func (p Patch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name cannot be blank", ErrValidation)
	}
	if p.Command != nil && strings.TrimSpace(*p.Command) == "" {
		return fmt.Errorf("%w: command cannot be blank", ErrValidation)
	}
	if p.BeforeJobID != nil && p.AfterJobID != nil {
		return fmt.Errorf("%w: before_job_id and after_job_id are mutually exclusive", ErrValidation)
	}
	if p.ClearDependency && (p.BeforeJobID != nil || p.AfterJobID != nil) {
		return fmt.Errorf("%w: cannot clear and set a dependency in the same update", ErrValidation)
	}
	if p.Schedule != nil {
		if err := schedule.Validate(*p.Schedule); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return nil
}

// apply merges the patch into a copy of the job and returns it.
func (p Patch) apply(j *Job) *Job {
	merged := j.Clone()
	if p.Name != nil {
		merged.Name = *p.Name
	}
	if p.Description != nil {
		merged.Description = *p.Description
	}
	if p.Schedule != nil {
		merged.Schedule = *p.Schedule
	}
	if p.Command != nil {
		merged.Command = *p.Command
	}
	if p.Enabled != nil {
		merged.Enabled = *p.Enabled
	}
	if p.ClearDependency {
		merged.BeforeJobID = nil
		merged.AfterJobID = nil
	}
	if p.BeforeJobID != nil {
		id := *p.BeforeJobID
		merged.BeforeJobID = &id
		merged.AfterJobID = nil
	}
	if p.AfterJobID != nil {
		id := *p.AfterJobID
		merged.AfterJobID = &id
		merged.BeforeJobID = nil
	}
	return merged
}
