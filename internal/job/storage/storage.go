package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ductran/service-agent/internal/job"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, tenant_id, name, service_type, url, method, topic,
	headers, body, job_type, status, scheduled_at, completed_at,
	response, response_headers, error_message, created_at
`

// Storage handles all database operations on the jobs table.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance.
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new job record.
func (s *Storage) CreateJob(ctx context.Context, j *job.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, tenant_id, name, service_type, url, method, topic,
			headers, body, job_type, status, scheduled_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		j.JobID,
		j.TenantID,
		j.Name,
		j.ServiceType,
		j.URL,
		j.Method,
		j.Topic,
		j.Headers,
		j.Body,
		j.JobType,
		j.Status,
		j.ScheduledAt,
		j.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by id within the owning tenant. Returns
// job.ErrJobNotFound when the id does not exist or belongs to another
// tenant.
func (s *Storage) GetJob(ctx context.Context, tenantID, jobID string) (*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE job_id = $1 AND tenant_id = $2
	`

	var j job.Job
	err := s.db.GetContext(ctx, &j, query, jobID, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &j, nil
}

// GetJobByID retrieves a job by id regardless of tenant. The dispatch path
// uses it to re-read the persisted outcome of a job it already owns.
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE job_id = $1
	`

	var j job.Job
	err := s.db.GetContext(ctx, &j, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &j, nil
}

// ListJobs returns one page of the tenant's jobs, newest first, plus the
// total count for pagination.
func (s *Storage) ListJobs(ctx context.Context, tenantID string, page, limit int) ([]*job.Job, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	var total int
	countQuery := `SELECT COUNT(*) FROM jobs WHERE tenant_id = $1`
	if err := s.db.GetContext(ctx, &total, countQuery, tenantID); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC, job_id DESC
		LIMIT $2 OFFSET $3
	`

	var jobs []*job.Job
	if err := s.db.SelectContext(ctx, &jobs, query, tenantID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, total, nil
}

// FindDueScheduledJobs returns scheduled jobs that are still pending and
// whose scheduled time has passed, ordered by due time then id.
func (s *Storage) FindDueScheduledJobs(ctx context.Context, now time.Time) ([]*job.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM jobs
		WHERE job_type = $1 AND status = $2 AND scheduled_at <= $3
		ORDER BY scheduled_at ASC, job_id ASC
	`

	var jobs []*job.Job
	err := s.db.SelectContext(ctx, &jobs, query, job.TypeScheduled, job.StatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find due scheduled jobs: %w", err)
	}

	return jobs, nil
}

// MarkInProgress moves a pending job to IN_PROGRESS. A job already past
// PENDING is left untouched.
func (s *Storage) MarkInProgress(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1
		WHERE job_id = $2 AND status = $3
	`

	_, err := s.db.ExecContext(ctx, query, job.StatusInProgress, jobID, job.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job in progress: %w", err)
	}

	return nil
}

// MarkCompleted stores the executor outcome and stamps completed_at. Jobs
// already in a terminal status are never mutated.
func (s *Storage) MarkCompleted(ctx context.Context, jobID string, response job.JSONMap, responseHeaders job.StringMap) error {
	query := `
		UPDATE jobs
		SET status = $1,
			response = $2,
			response_headers = $3,
			completed_at = NOW()
		WHERE job_id = $4 AND status NOT IN ($5, $6)
	`

	result, err := s.db.ExecContext(ctx, query,
		job.StatusCompleted, response, responseHeaders,
		jobID, job.StatusCompleted, job.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	s.logTerminalUpdate(jobID, job.StatusCompleted, result)
	return nil
}

// MarkFailed records the dispatch failure and stamps completed_at. Jobs
// already in a terminal status are never mutated.
func (s *Storage) MarkFailed(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1,
			error_message = $2,
			completed_at = NOW()
		WHERE job_id = $3 AND status NOT IN ($4, $5)
	`

	result, err := s.db.ExecContext(ctx, query,
		job.StatusFailed, errorMessage,
		jobID, job.StatusCompleted, job.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	s.logTerminalUpdate(jobID, job.StatusFailed, result)
	return nil
}

func (s *Storage) logTerminalUpdate(jobID string, status job.Status, result sql.Result) {
	rows, err := result.RowsAffected()
	if err != nil {
		return
	}

	if rows == 0 {
		s.logger.Warn("Job terminal update skipped - already terminal or missing",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
		)
		return
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)
}
