package review

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/robfig/cron.v2"
)

// Scheduler triggers a sweep on a fixed period with an in-process cron.
type Scheduler struct {
	reviewer *Reviewer
	period   time.Duration
	logger   logrus.FieldLogger

	mu      sync.Mutex
	wg      sync.WaitGroup
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	stopped bool
}

// NewScheduler creates a Scheduler for an ISO-8601 period such as
// EveryThirtyMinutes.
func NewScheduler(reviewer *Reviewer, period string, logger logrus.FieldLogger) (*Scheduler, error) {
	if reviewer == nil {
		return nil, errors.New("reviewer is required")
	}
	d, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{reviewer: reviewer, period: d, logger: logger}, nil
}

// Period is the interval between two triggers.
func (s *Scheduler) Period() time.Duration {
	return s.period
}

// Start schedules the sweep. The context is handed to every sweep and
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()
	s.cron.Schedule(cron.Every(s.period), cron.FuncJob(s.Trigger))
	s.cron.Start()
	s.started = true
	s.stopped = false
	s.logger.WithField("period", s.period.String()).Info("review scheduler started")
}

// Stop stops scheduling new sweeps, cancels the running one and waits for it
// to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cron.Stop()
	s.cancel()
	s.started = false
	s.stopped = true
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("review scheduler stopped")
}

// Trigger runs one sweep unless one is already running or the scheduler has
// been stopped.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := s.reviewer.ReviewAssignedTasks(ctx)
	switch {
	case errors.Is(err, ErrReviewInProgress):
		s.logger.Warn("previous review still running, skipping trigger")
	case err != nil:
		s.logger.WithError(err).Error("review failed")
	default:
		if failed := report.Failures(); len(failed) > 0 {
			s.logger.WithError(report.Err()).Warnf("review finished with %d failures", len(failed))
		}
	}
}
