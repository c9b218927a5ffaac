package handler

import (
	"context"
	"log/slog"

	"github.com/ductran/service-agent/internal/job"
)

// JobStore is the slice of the job store the API surface needs.
type JobStore interface {
	CreateJob(ctx context.Context, j *job.Job) error
	GetJob(ctx context.Context, tenantID, jobID string) (*job.Job, error)
	ListJobs(ctx context.Context, tenantID string, page, limit int) ([]*job.Job, int, error)
}

// JobDispatcher runs one dispatch attempt and returns the persisted job.
type JobDispatcher interface {
	Dispatch(ctx context.Context, j *job.Job) (*job.Job, error)
}

// Dependencies holds all dependencies needed by handlers.
type Dependencies struct {
	Logger     *slog.Logger
	Store      JobStore
	Dispatcher JobDispatcher
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	logger     *slog.Logger
	store      JobStore
	dispatcher JobDispatcher
}

// NewJobHandler creates a new JobHandler instance.
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:     deps.Logger,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
	}
}
