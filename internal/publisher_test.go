package internal

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

type stubPublisher struct {
	published    int
	failures     int
	lastTopic    string
	lastPayload  []byte
	lastMetadata message.Metadata
}

func (s *stubPublisher) Publish(topic string, msgs ...*message.Message) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.published += len(msgs)
	s.lastTopic = topic
	if len(msgs) > 0 {
		s.lastPayload = append([]byte(nil), msgs[0].Payload...)
		s.lastMetadata = msgs[0].Metadata
	}
	return nil
}

func (s *stubPublisher) Close() error {
	return nil
}

func registerStub(t *testing.T, name string, stub *stubPublisher, closeFn func() error) {
	t.Helper()
	orig, had := publisherFactories[name]
	t.Cleanup(func() {
		if had {
			publisherFactories[name] = orig
		} else {
			delete(publisherFactories, name)
		}
	})
	RegisterPublisherDriver(name, func(cfg WatermillConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
		return stub, closeFn, nil
	})
}

func TestRegisterPublisherDriver(t *testing.T) {
	stub := &stubPublisher{}
	closed := false
	registerStub(t, "custom", stub, func() error { closed = true; return nil })

	pub, err := NewPublisher(WatermillConfig{Driver: "custom"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.PublishForDrivers(context.Background(), "custom.topic", Event{Provider: "github"}, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if stub.published != 1 || stub.lastTopic != "custom.topic" {
		t.Fatalf("expected publish to custom.topic once, got %d to %q", stub.published, stub.lastTopic)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closed {
		t.Fatalf("expected custom close to be called")
	}
}

func TestHTTPURLTarget(t *testing.T) {
	url, err := httpTargetURL(HTTPConfig{Mode: "base_url", BaseURL: "http://localhost:8080/hooks/"}, "/issue.new")
	if err != nil {
		t.Fatalf("httpTargetURL: %v", err)
	}
	if url != "http://localhost:8080/hooks/issue.new" {
		t.Fatalf("unexpected url: %q", url)
	}
	if _, err := httpTargetURL(HTTPConfig{Mode: "topic_url"}, ""); err == nil {
		t.Fatalf("expected error for empty topic url")
	}
}

func TestMultipleDrivers(t *testing.T) {
	a := &stubPublisher{}
	b := &stubPublisher{}
	registerStub(t, "multi-a", a, nil)
	registerStub(t, "multi-b", b, nil)

	pub, err := NewPublisher(WatermillConfig{Drivers: []string{"multi-a", "multi-b"}})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	if err := pub.Publish(context.Background(), "multi.topic", Event{Provider: "github"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if a.published != 1 || b.published != 1 {
		t.Fatalf("expected publish to both drivers, got a=%d b=%d", a.published, b.published)
	}

	if err := pub.PublishForDrivers(context.Background(), "multi.topic", Event{}, []string{"MULTI-B"}); err != nil {
		t.Fatalf("publish for drivers: %v", err)
	}
	if a.published != 1 || b.published != 2 {
		t.Fatalf("expected only multi-b, got a=%d b=%d", a.published, b.published)
	}
}

func TestPublishFoldsDriverFailures(t *testing.T) {
	ok := &stubPublisher{}
	broken := &stubPublisher{failures: 100}
	registerStub(t, "fold-ok", ok, nil)
	registerStub(t, "fold-broken", broken, nil)

	pub, err := NewPublisher(WatermillConfig{Drivers: []string{"fold-ok", "fold-broken"}})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	err = pub.PublishForDrivers(context.Background(), "t", Event{}, []string{"fold-broken", "missing", "fold-ok"})
	if err == nil {
		t.Fatalf("expected folded error")
	}
	if !strings.Contains(err.Error(), "broker unavailable") || !strings.Contains(err.Error(), "unknown driver missing") {
		t.Fatalf("expected both failures, got %v", err)
	}
	if ok.published != 1 {
		t.Fatalf("expected healthy driver to still publish, got %d", ok.published)
	}
}

func TestPublishRetries(t *testing.T) {
	stub := &stubPublisher{failures: 2}
	registerStub(t, "flaky", stub, nil)

	pub, err := NewPublisher(WatermillConfig{Driver: "flaky", PublishRetry: PublishRetryConfig{Attempts: 3, DelayMS: 1}})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if err := pub.Publish(context.Background(), "t", Event{}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if stub.published != 1 {
		t.Fatalf("expected one delivered message, got %d", stub.published)
	}
}

func TestPublishUsesRawPayloadAndMetadata(t *testing.T) {
	stub := &stubPublisher{}
	registerStub(t, "payload", stub, nil)

	pub, err := NewPublisher(WatermillConfig{Driver: "payload"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}

	raw := []byte(`{"action":"opened","issue":{"number":1}}`)
	event := Event{
		Provider:   "github",
		Name:       "issues",
		Type:       "newIssue",
		Project:    "mihai/test",
		RequestID:  "req-123",
		RawPayload: raw,
	}
	if err := pub.Publish(context.Background(), "issue.new", event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if string(stub.lastPayload) != string(raw) {
		t.Fatalf("expected raw payload to be forwarded")
	}
	want := map[string]string{
		MetadataProvider:  "github",
		MetadataEvent:     "issues",
		MetadataType:      "newIssue",
		MetadataProject:   "mihai/test",
		MetadataRequestID: "req-123",
	}
	for key, value := range want {
		if got := stub.lastMetadata.Get(key); got != value {
			t.Fatalf("expected metadata %s=%q, got %q", key, value, got)
		}
	}
}

func TestPublishEncodesEventWithoutPayload(t *testing.T) {
	stub := &stubPublisher{}
	registerStub(t, "encoded", stub, nil)

	pub, err := NewPublisher(WatermillConfig{Driver: "encoded"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	if err := pub.Publish(context.Background(), "review", Event{Name: "assignedTasks", Type: "assignedTasks", Project: "mihai/test"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(stub.lastPayload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Type != "assignedTasks" || decoded.Project != "mihai/test" {
		t.Fatalf("unexpected encoded event %+v", decoded)
	}
}
