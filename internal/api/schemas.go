package api

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miem-project-2259/openvair/pkg/cronjob"
	"github.com/miem-project-2259/openvair/pkg/schedule"
)

const (
	maxNameLength        = 50
	maxDescriptionLength = 255
)

// commandMetaChars are shell constructs a job command may not contain.
// Guard plumbing is added by the resolver, never accepted from clients.
// '#' starts a comment when the line runs under sh, so anything after
// it would be stored but never executed.
const commandMetaChars = ";&|`$<>(){}#'\"\\\n"

// forbiddenUtilities is the destructive-command denylist, matched
// against the basename of the command's first token.
var forbiddenUtilities = map[string]bool{
	"rm": true, "rmdir": true, "dd": true, "mkfs": true, "fdisk": true,
	"shutdown": true, "reboot": true, "halt": true, "poweroff": true,
	"kill": true, "killall": true, "pkill": true,
}

// validateCommand enforces the safety allow-list the domain layer
// assumes has already run.
func validateCommand(cmd string) string {
	if strings.TrimSpace(cmd) == "" {
		return "command cannot be empty or whitespace"
	}
	if i := strings.IndexAny(cmd, commandMetaChars); i >= 0 {
		return fmt.Sprintf("command contains forbidden character %q", cmd[i])
	}
	first := strings.Fields(cmd)[0]
	if base := path.Base(first); forbiddenUtilities[base] || strings.HasPrefix(base, "mkfs.") {
		return fmt.Sprintf("command %q is not permitted", base)
	}
	return ""
}

type createJobRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Command     string     `json:"command"`
	Enabled     *bool      `json:"enabled"`
	BeforeJobID *uuid.UUID `json:"before_job_id"`
	AfterJobID  *uuid.UUID `json:"after_job_id"`
}

// validate returns a human-readable problem description, empty when the
// request is acceptable.
func (r createJobRequest) validate() string {
	if strings.TrimSpace(r.Name) == "" {
		return "name cannot be empty or whitespace"
	}
	if len(r.Name) > maxNameLength {
		return fmt.Sprintf("name exceeds %d characters", maxNameLength)
	}
	if len(r.Description) > maxDescriptionLength {
		return fmt.Sprintf("description exceeds %d characters", maxDescriptionLength)
	}
	if strings.TrimSpace(r.Schedule) == "" {
		return "schedule cannot be empty or whitespace"
	}
	if err := schedule.Validate(r.Schedule); err != nil {
		return fmt.Sprintf("schedule %q is not a valid cron expression", r.Schedule)
	}
	if msg := validateCommand(r.Command); msg != "" {
		return msg
	}
	if r.BeforeJobID != nil && r.AfterJobID != nil {
		return "cannot specify both before_job_id and after_job_id for the same job"
	}
	return ""
}

func (r createJobRequest) toSpec() cronjob.Spec {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return cronjob.Spec{
		Name:        strings.TrimSpace(r.Name),
		Description: r.Description,
		Schedule:    strings.TrimSpace(r.Schedule),
		Command:     strings.TrimSpace(r.Command),
		Enabled:     enabled,
		BeforeJobID: r.BeforeJobID,
		AfterJobID:  r.AfterJobID,
	}
}

type updateJobRequest struct {
	Name            *string    `json:"name"`
	Description     *string    `json:"description"`
	Schedule        *string    `json:"schedule"`
	Command         *string    `json:"command"`
	Enabled         *bool      `json:"enabled"`
	BeforeJobID     *uuid.UUID `json:"before_job_id"`
	AfterJobID      *uuid.UUID `json:"after_job_id"`
	ClearDependency bool       `json:"clear_dependency"`
}

func (r updateJobRequest) validate() string {
	if r.Name != nil {
		if strings.TrimSpace(*r.Name) == "" {
			return "name cannot be only whitespace"
		}
		if len(*r.Name) > maxNameLength {
			return fmt.Sprintf("name exceeds %d characters", maxNameLength)
		}
	}
	if r.Description != nil && len(*r.Description) > maxDescriptionLength {
		return fmt.Sprintf("description exceeds %d characters", maxDescriptionLength)
	}
	if r.Schedule != nil {
		if err := schedule.Validate(*r.Schedule); err != nil {
			return fmt.Sprintf("schedule %q is not a valid cron expression", *r.Schedule)
		}
	}
	if r.Command != nil {
		if msg := validateCommand(*r.Command); msg != "" {
			return msg
		}
	}
	if r.BeforeJobID != nil && r.AfterJobID != nil {
		return "cannot specify both before_job_id and after_job_id for the same job"
	}
	if r.ClearDependency && (r.BeforeJobID != nil || r.AfterJobID != nil) {
		return "cannot clear and set a dependency in the same request"
	}
	return ""
}

func (r updateJobRequest) toPatch() cronjob.Patch {
	p := cronjob.Patch{
		Name:            r.Name,
		Description:     r.Description,
		Schedule:        r.Schedule,
		Command:         r.Command,
		Enabled:         r.Enabled,
		BeforeJobID:     r.BeforeJobID,
		AfterJobID:      r.AfterJobID,
		ClearDependency: r.ClearDependency,
	}
	if p.Name != nil {
		trimmed := strings.TrimSpace(*p.Name)
		p.Name = &trimmed
	}
	if p.Command != nil {
		trimmed := strings.TrimSpace(*p.Command)
		p.Command = &trimmed
	}
	return p
}

type jobResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Command     string     `json:"command"`
	Enabled     bool       `json:"enabled"`
	BeforeJobID *uuid.UUID `json:"before_job_id,omitempty"`
	AfterJobID  *uuid.UUID `json:"after_job_id,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}

func toJobResponse(j *cronjob.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		Name:        j.Name,
		Description: j.Description,
		Schedule:    j.Schedule,
		Command:     j.Command,
		Enabled:     j.Enabled,
		BeforeJobID: j.BeforeJobID,
		AfterJobID:  j.AfterJobID,
		Status:      string(j.Status),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		LastRun:     j.LastRun,
		NextRun:     j.NextRun,
	}
}
