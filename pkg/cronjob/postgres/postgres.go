// Package postgres provides a pgx-backed cronjob.Repository.
//
// Job records live in a single cron_jobs table with a partial unique
// index on name, mirroring the domain rule that names are unique among
// existing jobs. Schema management goes through embedded goose
// migrations; call Migrate before constructing the repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/miem-project-2259/openvair/pkg/cronjob"
)

// uniqueViolation is the Postgres error code for unique constraint hits.
const uniqueViolation = "23505"

// Repository stores job records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a repository over an established pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const saveQuery = `
INSERT INTO cron_jobs (
	id, name, description, schedule, command, effective_command,
	enabled, before_job_id, after_job_id, status,
	created_at, updated_at, last_run, next_run
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	schedule = EXCLUDED.schedule,
	command = EXCLUDED.command,
	effective_command = EXCLUDED.effective_command,
	enabled = EXCLUDED.enabled,
	before_job_id = EXCLUDED.before_job_id,
	after_job_id = EXCLUDED.after_job_id,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at,
	last_run = EXCLUDED.last_run,
	next_run = EXCLUDED.next_run`

func (r *Repository) Save(ctx context.Context, job *cronjob.Job) error {
	_, err := r.pool.Exec(ctx, saveQuery,
		job.ID, job.Name, job.Description, job.Schedule, job.Command,
		job.EffectiveCommand, job.Enabled, job.BeforeJobID, job.AfterJobID,
		string(job.Status), job.CreatedAt, job.UpdatedAt, job.LastRun, job.NextRun,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %q", cronjob.ErrNameConflict, job.Name)
		}
		return fmt.Errorf("postgres: save job %s: %w", job.ID, err)
	}
	return nil
}

const selectColumns = `
	id, name, description, schedule, command, effective_command,
	enabled, before_job_id, after_job_id, status,
	created_at, updated_at, last_run, next_run`

func (r *Repository) Find(ctx context.Context, id uuid.UUID) (*cronjob.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+selectColumns+` FROM cron_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", cronjob.ErrJobNotFound, id)
	}
	return job, err
}

func (r *Repository) FindByName(ctx context.Context, name string) (*cronjob.Job, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+selectColumns+` FROM cron_jobs WHERE name = $1`, name)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: name %q", cronjob.ErrJobNotFound, name)
	}
	return job, err
}

func (r *Repository) All(ctx context.Context) ([]*cronjob.Job, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+selectColumns+` FROM cron_jobs ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list jobs: %w", err)
	}
	defer rows.Close()

	var out []*cronjob.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list jobs: %w", err)
	}
	return out, nil
}

func (r *Repository) Remove(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cron_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: remove job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", cronjob.ErrJobNotFound, id)
	}
	return nil
}

func scanJob(row pgx.Row) (*cronjob.Job, error) {
	var j cronjob.Job
	var status string
	err := row.Scan(
		&j.ID, &j.Name, &j.Description, &j.Schedule, &j.Command,
		&j.EffectiveCommand, &j.Enabled, &j.BeforeJobID, &j.AfterJobID,
		&status, &j.CreatedAt, &j.UpdatedAt, &j.LastRun, &j.NextRun,
	)
	if err != nil {
		return nil, err
	}
	j.Status = cronjob.Status(status)
	return &j, nil
}
