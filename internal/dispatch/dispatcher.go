package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ductran/service-agent/internal/job"
)

// Outcome is what an executor captured from one transport attempt.
type Outcome struct {
	Response        job.JSONMap
	ResponseHeaders job.StringMap
}

// Executor performs a job's transport-specific action. It returns an error
// only for transport-level failures; whatever a remote service answered,
// including error statuses, is success data.
type Executor interface {
	Execute(ctx context.Context, j *job.Job) (*Outcome, error)
}

// Store is the slice of the job store the dispatcher mutates. The
// dispatcher is the sole writer of status and outcome fields.
type Store interface {
	MarkInProgress(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, response job.JSONMap, responseHeaders job.StringMap) error
	MarkFailed(ctx context.Context, jobID, errorMessage string) error
	GetJobByID(ctx context.Context, jobID string) (*job.Job, error)
}

// Dispatcher selects an executor by service type and drives the status
// transitions around one dispatch attempt.
type Dispatcher struct {
	store     Store
	http      Executor
	messaging Executor
	logger    *slog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(store Store, httpExec, messagingExec Executor, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		http:      httpExec,
		messaging: messagingExec,
		logger:    logger,
	}
}

// Dispatch runs one attempt for the job and records the terminal outcome on
// the record. Executor failures are persisted as FAILED with an error
// message and never surface as a returned error; once the job record
// exists, its status and errorMessage fields are the single failure
// channel. The returned job is re-read from the store so callers always
// see the persisted final state.
func (d *Dispatcher) Dispatch(ctx context.Context, j *job.Job) (*job.Job, error) {
	d.logger.Info("Dispatching job",
		slog.String("job_id", j.JobID),
		slog.String("tenant_id", j.TenantID),
		slog.String("service_type", string(j.ServiceType)),
	)

	if err := d.store.MarkInProgress(ctx, j.JobID); err != nil {
		d.logger.Warn("Failed to mark job in progress",
			slog.String("job_id", j.JobID),
			slog.Any("error", err),
		)
	}

	executor, err := d.executorFor(j.ServiceType)
	if err != nil {
		return nil, err
	}

	outcome, execErr := executor.Execute(ctx, j)
	if execErr != nil {
		d.logger.Error("Job execution failed",
			slog.String("job_id", j.JobID),
			slog.String("service_type", string(j.ServiceType)),
			slog.Any("error", execErr),
		)
		if err := d.store.MarkFailed(ctx, j.JobID, execErr.Error()); err != nil {
			return nil, fmt.Errorf("failed to record job failure: %w", err)
		}
	} else {
		if err := d.store.MarkCompleted(ctx, j.JobID, outcome.Response, outcome.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("failed to record job completion: %w", err)
		}
	}

	return d.store.GetJobByID(ctx, j.JobID)
}

func (d *Dispatcher) executorFor(serviceType job.ServiceType) (Executor, error) {
	switch serviceType {
	case job.ServiceTypeHTTP:
		return d.http, nil
	case job.ServiceTypeMessaging:
		return d.messaging, nil
	default:
		return nil, fmt.Errorf("%w: %q", job.ErrUnknownServiceType, serviceType)
	}
}
