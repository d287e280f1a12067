package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"selfpm/pkg/domain/domaintest"
)

// lazyPool never connects: pgxpool dials on first use and these tests never
// start the River client.
func lazyPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.New(context.Background(), "postgres://selfpm@127.0.0.1:1/selfpm?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func reviewJob(id int64) *river.Job[ReviewArgs] {
	return &river.Job[ReviewArgs]{JobRow: &rivertype.JobRow{ID: id}}
}

func TestNewRiverTriggerValidates(t *testing.T) {
	reviewer := NewReviewer(coreOf())

	_, err := NewRiverTrigger(nil, reviewer, RiverConfig{})
	assert.Error(t, err)

	_, err = NewRiverTrigger(lazyPool(t), nil, RiverConfig{})
	assert.Error(t, err)

	_, err = NewRiverTrigger(lazyPool(t), reviewer, RiverConfig{Period: "half an hour"})
	assert.Error(t, err)
}

func TestNewRiverTriggerDefaultsPeriod(t *testing.T) {
	trigger, err := NewRiverTrigger(lazyPool(t), NewReviewer(coreOf()), RiverConfig{})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, trigger.Period())

	trigger, err = NewRiverTrigger(lazyPool(t), NewReviewer(coreOf()), RiverConfig{Period: "PT5M", Queue: "review", MaxWorkers: 2})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, trigger.Period())
}

func TestReviewArgsKind(t *testing.T) {
	assert.Equal(t, ReviewJobKind, ReviewArgs{}.Kind())
}

func TestReviewWorkerRunsSweep(t *testing.T) {
	project := projectNamed("mihai/test")
	project.On("Resolve", mock.Anything, mock.Anything).Return(errors.New("boom"))
	reviewer := NewReviewer(coreOf(managerOf("pm", project)))
	worker := &reviewWorker{reviewer: reviewer, logger: reviewer.logger}

	require.NoError(t, worker.Work(context.Background(), reviewJob(1)))
	project.AssertNumberOfCalls(t, "Resolve", 1)
}

func TestReviewWorkerSkipsWhileSweepRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	project := projectNamed("mihai/test")
	project.On("Resolve", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		close(started)
		<-release
	})
	reviewer := NewReviewer(coreOf(managerOf("pm", project)))
	worker := &reviewWorker{reviewer: reviewer, logger: reviewer.logger}

	done := make(chan error, 1)
	go func() {
		_, err := reviewer.ReviewAssignedTasks(context.Background())
		done <- err
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not start")
	}

	assert.NoError(t, worker.Work(context.Background(), reviewJob(2)))
	close(release)
	require.NoError(t, <-done)
	project.AssertNumberOfCalls(t, "Resolve", 1)
}

func TestReviewWorkerReturnsAbortedSweep(t *testing.T) {
	core := &domaintest.Core{}
	core.On("ProjectManagers", mock.Anything).Return(nil, errors.New("db down"))
	reviewer := NewReviewer(core)
	worker := &reviewWorker{reviewer: reviewer, logger: reviewer.logger}

	err := worker.Work(context.Background(), reviewJob(3))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
