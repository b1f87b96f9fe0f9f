package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docindex-go/internal/provisioner/app/bootstrap"
	"github.com/docindex-go/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Job is what the scheduler repeats; bootstrap.Runner implements it.
type Job interface {
	Run(ctx context.Context) (*bootstrap.Report, error)
}

type Option func(*Scheduler)

// WithLock makes every tick take the lease first and skip when another
// replica holds it.
func WithLock(lock *Lock) Option {
	return func(s *Scheduler) {
		s.lock = lock
	}
}

// Scheduler reruns provisioning on a cron schedule to repair drift, such as
// indexes dropped out of band.
type Scheduler struct {
	cron   *cron.Cron
	spec   string
	job    Job
	lock   *Lock
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler accepts standard five field expressions and descriptors
// such as "@every 10m".
func NewScheduler(spec string, job Job, log logger.Logger, opts ...Option) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		spec:   spec,
		job:    job,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() { s.Tick(s.ctx) }); err != nil {
		return fmt.Errorf("failed to schedule provisioning: %w", err)
	}
	s.cron.Start()
	s.logger.Info("Drift repair scheduled", "schedule", s.spec, "next", s.Next())
	return nil
}

// Stop cancels a running tick and waits for it to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next returns when the next tick fires, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Tick runs the job once, under the lock when one is configured. It reports
// whether the job ran.
func (s *Scheduler) Tick(ctx context.Context) bool {
	if s.lock != nil {
		token, err := s.lock.Acquire(ctx)
		if err != nil {
			s.logger.Warn("Skipping drift repair, lock unavailable", "error", err)
			return false
		}
		if token == "" {
			s.logger.Debug("Skipping drift repair, another replica holds the lock")
			return false
		}
		defer func() {
			if err := s.lock.Release(context.Background(), token); err != nil {
				s.logger.Warn("Failed to release drift repair lock", "error", err)
			}
		}()
	}

	report, err := s.job.Run(ctx)
	switch {
	case errors.Is(err, bootstrap.ErrRunInProgress):
		s.logger.Debug("Skipping drift repair, a run is in progress")
		return false
	case err != nil:
		s.logger.Error("Drift repair failed", "error", err)
	default:
		s.logger.Info("Drift repair finished", "outcomes", len(report.Outcomes), "duration", report.Duration())
	}
	return true
}
