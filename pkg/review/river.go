package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/sirupsen/logrus"
)

// ReviewJobKind is the River job kind of a sweep.
const ReviewJobKind = "selfpm.review_assigned_tasks"

// ReviewArgs are the (empty) arguments of the periodic sweep job.
type ReviewArgs struct{}

func (ReviewArgs) Kind() string { return ReviewJobKind }

type reviewWorker struct {
	river.WorkerDefaults[ReviewArgs]
	reviewer *Reviewer
	logger   logrus.FieldLogger
}

func (w *reviewWorker) Work(ctx context.Context, job *river.Job[ReviewArgs]) error {
	l := w.logger.WithField("job", job.ID)
	report, err := w.reviewer.ReviewAssignedTasks(ctx)
	if errors.Is(err, ErrReviewInProgress) {
		l.Warn("previous review still running, skipping job")
		return nil
	}
	if err != nil {
		return err
	}
	if failed := report.Failures(); len(failed) > 0 {
		l.WithError(report.Err()).Warnf("review finished with %d failures", len(failed))
	}
	return nil
}

// RiverConfig configures a RiverTrigger.
type RiverConfig struct {
	Queue      string
	Period     string
	MaxWorkers int
	// Logger receives the trigger's logs and, through a slog bridge, the
	// River client's.
	Logger logrus.FieldLogger
}

// RiverTrigger schedules sweeps as a River periodic job. Jobs are unique per
// period so that several replicas sharing a database sweep once.
type RiverTrigger struct {
	client *river.Client[pgx.Tx]
	period time.Duration
	logger logrus.FieldLogger
}

// NewRiverTrigger creates a RiverTrigger on pool. The River schema must
// already be migrated.
func NewRiverTrigger(pool *pgxpool.Pool, reviewer *Reviewer, cfg RiverConfig) (*RiverTrigger, error) {
	if pool == nil {
		return nil, errors.New("river trigger requires a database pool")
	}
	if reviewer == nil {
		return nil, errors.New("reviewer is required")
	}
	if cfg.Period == "" {
		cfg.Period = EveryThirtyMinutes
	}
	period, err := ParsePeriod(cfg.Period)
	if err != nil {
		return nil, err
	}
	if cfg.Queue == "" {
		cfg.Queue = river.QueueDefault
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &reviewWorker{reviewer: reviewer, logger: logger})

	queue := cfg.Queue
	periodic := river.NewPeriodicJob(
		river.PeriodicInterval(period),
		func() (river.JobArgs, *river.InsertOpts) {
			return ReviewArgs{}, &river.InsertOpts{
				Queue:       queue,
				MaxAttempts: 3,
				UniqueOpts:  river.UniqueOpts{ByPeriod: period},
			}
		},
		nil,
	)

	riverCfg := &river.Config{
		Queues: map[string]river.QueueConfig{
			queue: {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: []*river.PeriodicJob{periodic},
	}
	riverCfg.Logger = slog.New(newLogrusHandler(logger.WithField("component", "selfpm/river")))
	client, err := river.NewClient(riverpgxv5.New(pool), riverCfg)
	if err != nil {
		return nil, errors.Wrap(err, "river client")
	}
	return &RiverTrigger{client: client, period: period, logger: logger}, nil
}

// Period is the interval between two sweep jobs.
func (t *RiverTrigger) Period() time.Duration {
	return t.period
}

// Start starts the River client.
func (t *RiverTrigger) Start(ctx context.Context) error {
	if err := t.client.Start(ctx); err != nil {
		return errors.Wrap(err, "river start")
	}
	t.logger.WithField("period", t.period.String()).Info("review river trigger started")
	return nil
}

// Stop waits for running jobs and stops the River client.
func (t *RiverTrigger) Stop(ctx context.Context) error {
	return t.client.Stop(ctx)
}
