package review

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewSchedulerUsesPeriod(t *testing.T) {
	s, err := NewScheduler(NewReviewer(coreOf()), EveryThirtyMinutes, nil)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, s.Period())
}

func TestNewSchedulerRejectsBadPeriod(t *testing.T) {
	_, err := NewScheduler(NewReviewer(coreOf()), "half an hour", nil)
	assert.Error(t, err)
}

func TestSchedulerTriggerRunsSweep(t *testing.T) {
	project := projectNamed("mihai/test")
	project.On("Resolve", mock.Anything, mock.Anything).Return(nil)
	core := coreOf(managerOf("pm", project))

	s, err := NewScheduler(NewReviewer(core), EveryThirtyMinutes, nil)
	require.NoError(t, err)
	s.Trigger()

	project.AssertNumberOfCalls(t, "Resolve", 1)
}

func TestSchedulerFiresOnPeriod(t *testing.T) {
	done := make(chan struct{}, 1)
	project := projectNamed("mihai/test")
	project.On("Resolve", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	core := coreOf(managerOf("pm", project))

	s, err := NewScheduler(NewReviewer(core), "PT1S", nil)
	require.NoError(t, err)
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected a sweep within 5s")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	s, err := NewScheduler(NewReviewer(coreOf()), EveryThirtyMinutes, nil)
	require.NoError(t, err)
	s.Stop()
}

func TestSchedulerStopWaitsForRunningSweep(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	project := projectNamed("mihai/test")
	project.On("Resolve", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		close(started)
		time.Sleep(300 * time.Millisecond)
		finished.Store(true)
	})

	s, err := NewScheduler(NewReviewer(coreOf(managerOf("pm", project))), EveryThirtyMinutes, nil)
	require.NoError(t, err)
	s.Start(context.Background())
	go s.Trigger()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not start")
	}
	s.Stop()
	assert.True(t, finished.Load())
}

func TestSchedulerTriggerAfterStopIsIgnored(t *testing.T) {
	project := projectNamed("mihai/test")
	project.On("Resolve", mock.Anything, mock.Anything).Return(nil)

	s, err := NewScheduler(NewReviewer(coreOf(managerOf("pm", project))), EveryThirtyMinutes, nil)
	require.NoError(t, err)
	s.Start(context.Background())
	s.Stop()
	s.Trigger()

	project.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}
