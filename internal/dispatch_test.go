package internal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfpm/pkg/domain"
	"selfpm/pkg/domain/domaintest"
	"selfpm/pkg/event"
)

type published struct {
	topic   string
	event   Event
	drivers []string
}

type recordingPublisher struct {
	published []published
	err       error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, evt Event) error {
	return p.PublishForDrivers(ctx, topic, evt, nil)
}

func (p *recordingPublisher) PublishForDrivers(_ context.Context, topic string, evt Event, drivers []string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, published{topic: topic, event: evt, drivers: drivers})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type sweepEvent struct{ project domain.Project }

func (e sweepEvent) Project() domain.Project          { return e.project }
func (e sweepEvent) Type() domain.EventType           { return domain.AssignedTasks }
func (e sweepEvent) Commit() domain.Commit            { return nil }
func (e sweepEvent) Issue() (domain.Issue, error)     { return nil, domain.ErrNotApplicable }
func (e sweepEvent) Comment() (domain.Comment, error) { return nil, nil }

func githubProject() *domaintest.Project {
	project := &domaintest.Project{}
	project.On("Provider").Return("github")
	project.On("RepoFullName").Return("mihai/test")
	return project
}

func TestDispatcherPublishesWebhookEvent(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `event_type == "newIssue" && issue.number == 1`, Emit: EmitList{"issue.new"}, Drivers: []string{"gochannel"}},
		{When: `event_type == "push"`, Emit: EmitList{"push"}},
	}})
	pub := &recordingPublisher{}
	dispatcher := NewDispatcher(engine, pub, nil)

	payload := []byte(`{"action":"opened","issue":{"number":1}}`)
	evt := event.New(githubProject(), "issues", payload, nil)
	ctx := ContextWithRequestID(context.Background(), "req-1")

	require.NoError(t, dispatcher.Resolve(ctx, evt))
	require.Len(t, pub.published, 1)
	got := pub.published[0]
	assert.Equal(t, "issue.new", got.topic)
	assert.Equal(t, []string{"gochannel"}, got.drivers)
	assert.Equal(t, Event{
		Provider:   "github",
		Name:       "issues",
		Type:       "newIssue",
		Project:    "mihai/test",
		RequestID:  "req-1",
		RawPayload: payload,
	}, got.event)
}

func TestDispatcherPublishesSweepEvent(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `event_type == "assignedTasks"`, Emit: EmitList{"review.tasks"}},
	}})
	pub := &recordingPublisher{}

	err := NewDispatcher(engine, pub, nil).Resolve(context.Background(), sweepEvent{project: githubProject()})
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "assignedTasks", pub.published[0].event.Name)
	assert.Empty(t, pub.published[0].event.RawPayload)
}

func TestDispatcherNoMatch(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `event_type == "push"`, Emit: EmitList{"push"}},
	}})
	pub := &recordingPublisher{}

	evt := event.New(githubProject(), "issues", []byte(`{"action":"closed"}`), nil)
	require.NoError(t, NewDispatcher(engine, pub, nil).Resolve(context.Background(), evt))
	assert.Empty(t, pub.published)
}

func TestDispatcherPublishFailure(t *testing.T) {
	engine := mustEngine(t, RulesConfig{Rules: []Rule{
		{When: `event_type == "push"`, Emit: EmitList{"push", "audit"}},
	}})
	pub := &recordingPublisher{err: errors.New("broker down")}

	evt := event.New(githubProject(), "push", []byte(`{}`), nil)
	err := NewDispatcher(engine, pub, nil).Resolve(context.Background(), evt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish push")
	assert.Contains(t, err.Error(), "publish audit")
}
