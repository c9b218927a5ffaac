package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ductran/service-agent/internal/job"
	"github.com/robfig/cron/v3"
)

// DefaultCron fires once per minute.
const DefaultCron = "* * * * *"

// Store is the slice of the job store the scheduler queries.
type Store interface {
	FindDueScheduledJobs(ctx context.Context, now time.Time) ([]*job.Job, error)
}

// Dispatcher runs one dispatch attempt for a due job.
type Dispatcher interface {
	Dispatch(ctx context.Context, j *job.Job) (*job.Job, error)
}

// Scheduler promotes due scheduled jobs on a cron-driven tick. Jobs within
// one tick are dispatched sequentially, each awaited before the next; a
// slow executor delays the rest of the batch, which is acceptable at the
// low job volumes this system is built for. Tick failures are logged and
// never stop the timer.
type Scheduler struct {
	store      Store
	dispatcher Dispatcher
	logger     *slog.Logger
	cron       *cron.Cron
	spec       string
}

// New creates a Scheduler firing on the given cron expression, defaulting
// to once per minute.
func New(store Store, dispatcher Dispatcher, spec string, logger *slog.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultCron
	}

	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		cron:       cron.New(),
		spec:       spec,
	}
}

// Start registers the tick and starts the timer.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.tick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register scheduler cron %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started", slog.String("cron", s.spec))

	return nil
}

// Stop stops the timer and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	jobs, err := s.store.FindDueScheduledJobs(ctx, time.Now())
	if err != nil {
		s.logger.Error("Scheduled job query failed, skipping tick",
			slog.Any("error", err),
		)
		return
	}

	s.logger.Info("Scheduled jobs ready for execution",
		slog.Int("count", len(jobs)),
	)

	for _, j := range jobs {
		s.logger.Info("Executing scheduled job",
			slog.String("job_id", j.JobID),
			slog.String("tenant_id", j.TenantID),
		)

		if _, err := s.dispatcher.Dispatch(ctx, j); err != nil {
			s.logger.Error("Scheduled job dispatch failed",
				slog.String("job_id", j.JobID),
				slog.Any("error", err),
			)
		}
	}
}
