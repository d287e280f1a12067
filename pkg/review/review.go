// Package review periodically gives every managed project a chance to resolve
// its pending work.
package review

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"selfpm/pkg/domain"
)

// ErrReviewInProgress is returned when a sweep is requested while another one
// is still running.
var ErrReviewInProgress = errors.New("review already in progress")

// Outcome is the result of resolving one project. Project is empty for a
// manager whose projects could not be listed.
type Outcome struct {
	Manager string
	Project string
	Err     error
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		Manager string `json:"manager"`
		Project string `json:"project,omitempty"`
		Error   string `json:"error,omitempty"`
	}{Manager: o.Manager, Project: o.Project}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

// Report summarizes one sweep.
type Report struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Managers int       `json:"managers"`
	Outcomes []Outcome `json:"outcomes"`
}

// Failures returns the failed outcomes.
func (r Report) Failures() []Outcome {
	var failed []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Err folds every failure into one error, or nil.
func (r Report) Err() error {
	var result *multierror.Error
	for _, outcome := range r.Failures() {
		result = multierror.Append(result, outcome.Err)
	}
	return result.ErrorOrNil()
}

// Listener observes sweeps. Every OnSweepStart is followed by either
// OnSweepFinish or OnSweepAborted.
type Listener struct {
	OnSweepStart     func(ctx context.Context)
	OnProjectFailure func(ctx context.Context, outcome Outcome)
	OnSweepFinish    func(ctx context.Context, report Report)
	OnSweepAborted   func(ctx context.Context, report Report, err error)
	OnSweepSkipped   func(ctx context.Context)
}

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithLogger sets the logger of the reviewer.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(r *Reviewer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithListener adds a sweep listener.
func WithListener(listener Listener) Option {
	return func(r *Reviewer) {
		r.listeners = append(r.listeners, listener)
	}
}

// Reviewer runs sweeps over every project of every manager. At most one sweep
// runs at a time.
type Reviewer struct {
	core      domain.Core
	logger    logrus.FieldLogger
	listeners []Listener
	running   atomic.Bool
	now       func() time.Time
}

// NewReviewer creates a Reviewer over core.
func NewReviewer(core domain.Core, opts ...Option) *Reviewer {
	r := &Reviewer{
		core:   core,
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether a sweep is in progress.
func (r *Reviewer) Running() bool {
	return r.running.Load()
}

// ReviewAssignedTasks runs one sweep. Every project of every manager is
// resolved exactly once; a failing project is recorded in the report and does
// not stop the sweep. The returned error is non-nil only when the sweep could
// not run at all.
func (r *Reviewer) ReviewAssignedTasks(ctx context.Context) (Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.notifySkipped(ctx)
		return Report{}, ErrReviewInProgress
	}
	defer r.running.Store(false)

	report := Report{Started: r.now()}
	r.notifyStart(ctx)

	managers, err := r.core.ProjectManagers(ctx)
	if err != nil {
		err = errors.Wrap(err, "list project managers")
		report.Finished = r.now()
		r.logger.WithError(err).Error("review aborted")
		r.notifyAborted(ctx, report, err)
		return report, err
	}
	report.Managers = len(managers)

	for _, manager := range managers {
		report.Outcomes = append(report.Outcomes, r.reviewManager(ctx, manager)...)
	}

	report.Finished = r.now()
	r.logger.WithFields(logrus.Fields{
		"managers": report.Managers,
		"projects": len(report.Outcomes),
		"failures": len(report.Failures()),
		"duration": report.Finished.Sub(report.Started).String(),
	}).Info("reviewed assigned tasks")
	r.notifyFinish(ctx, report)
	return report, nil
}

func (r *Reviewer) reviewManager(ctx context.Context, manager domain.ProjectManager) []Outcome {
	l := r.logger.WithField("manager", manager.ID())
	projects, err := manager.Projects(ctx)
	if err != nil {
		outcome := Outcome{Manager: manager.ID(), Err: errors.Wrapf(err, "list projects of manager %s", manager.ID())}
		l.WithError(err).Warn("failed to list projects")
		r.notifyFailure(ctx, outcome)
		return []Outcome{outcome}
	}

	outcomes := make([]Outcome, 0, len(projects))
	for _, project := range projects {
		outcome := Outcome{Manager: manager.ID(), Project: project.RepoFullName()}
		if err := resolve(ctx, project); err != nil {
			outcome.Err = errors.Wrapf(err, "review project %s", outcome.Project)
			l.WithField("project", outcome.Project).WithError(err).Warn("failed to review project")
			r.notifyFailure(ctx, outcome)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// resolve turns a panicking project into an error so the sweep goes on.
func resolve(ctx context.Context, project domain.Project) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("panic: %v", rec)
		}
	}()
	return project.Resolve(ctx, assignedTasks{project: project})
}

func (r *Reviewer) notifyStart(ctx context.Context) {
	for _, listener := range r.listeners {
		if listener.OnSweepStart != nil {
			listener.OnSweepStart(ctx)
		}
	}
}

func (r *Reviewer) notifyFailure(ctx context.Context, outcome Outcome) {
	for _, listener := range r.listeners {
		if listener.OnProjectFailure != nil {
			listener.OnProjectFailure(ctx, outcome)
		}
	}
}

func (r *Reviewer) notifyFinish(ctx context.Context, report Report) {
	for _, listener := range r.listeners {
		if listener.OnSweepFinish != nil {
			listener.OnSweepFinish(ctx, report)
		}
	}
}

func (r *Reviewer) notifyAborted(ctx context.Context, report Report, err error) {
	for _, listener := range r.listeners {
		if listener.OnSweepAborted != nil {
			listener.OnSweepAborted(ctx, report, err)
		}
	}
}

func (r *Reviewer) notifySkipped(ctx context.Context) {
	for _, listener := range r.listeners {
		if listener.OnSweepSkipped != nil {
			listener.OnSweepSkipped(ctx)
		}
	}
}
