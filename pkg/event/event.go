package event

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"selfpm/pkg/domain"
)

// Event is a webhook delivery bound to the project it belongs to. It is
// immutable; entities are resolved on every call and never cached.
type Event struct {
	project  domain.Project
	name     string
	payload  []byte
	typ      domain.EventType
	resolver EntityResolver
}

var _ domain.Event = (*Event)(nil)

// New builds an Event. A nil resolver resolves entities through the
// project's provider.
func New(project domain.Project, eventName string, payload []byte, resolver EntityResolver) *Event {
	if resolver == nil {
		resolver = ProviderResolver{}
	}
	action := ""
	if gjson.ValidBytes(payload) {
		action = gjson.GetBytes(payload, "action").String()
	}
	return &Event{
		project:  project,
		name:     eventName,
		payload:  payload,
		typ:      Classify(eventName, action),
		resolver: resolver,
	}
}

func (e *Event) Project() domain.Project { return e.project }

// Name is the raw provider event name.
func (e *Event) Name() string { return e.name }

// Payload is the webhook body as received.
func (e *Event) Payload() json.RawMessage { return e.payload }

func (e *Event) Type() domain.EventType { return e.typ }

// Commit is always nil; webhook events do not carry commit entities yet.
func (e *Event) Commit() domain.Commit { return nil }

// Issue resolves the issue or pull request of the event.
func (e *Event) Issue() (domain.Issue, error) {
	fragment, err := e.issueFragment()
	if err != nil {
		return nil, err
	}
	return e.resolver.ResolveIssue(e.project, fragment)
}

// Comment resolves the comment of the event, or returns nil, nil when the
// payload has no comment.
func (e *Event) Comment() (domain.Comment, error) {
	comment := e.field("comment")
	if !comment.Exists() {
		return nil, nil
	}
	issue, err := e.Issue()
	if err != nil {
		return nil, err
	}
	return e.resolver.ResolveComment(issue, json.RawMessage(comment.Raw))
}

func (e *Event) issueFragment() (json.RawMessage, error) {
	key, ok := EntityKey(e.name)
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotApplicable, "event %q has no issue", e.name)
	}
	fragment := e.field(key)
	if !fragment.IsObject() {
		return nil, errors.Wrapf(domain.ErrNotApplicable, "event %q payload has no %q object", e.name, key)
	}
	return json.RawMessage(fragment.Raw), nil
}

func (e *Event) field(path string) gjson.Result {
	if !gjson.ValidBytes(e.payload) {
		return gjson.Result{}
	}
	return gjson.GetBytes(e.payload, path)
}
