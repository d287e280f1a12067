package domain

import "errors"

var (
	// ErrNotApplicable is returned when an entity is requested from an event
	// that does not carry one, e.g. the issue of a push.
	ErrNotApplicable = errors.New("entity not applicable to event")
	// ErrMalformedRepoName is returned for repository names that are not owner/name.
	ErrMalformedRepoName = errors.New("malformed repository full name")
)

// EventKind enumerates the canonical event types.
type EventKind int

const (
	KindOther EventKind = iota
	KindPush
	KindNewIssue
	KindReopenedIssue
	KindAssignedTasks
)

// EventType is the canonical classification of an event. Other carries the
// raw provider event name.
type EventType struct {
	Kind EventKind
	Name string
}

var (
	Push          = EventType{Kind: KindPush, Name: "push"}
	NewIssue      = EventType{Kind: KindNewIssue, Name: "newIssue"}
	ReopenedIssue = EventType{Kind: KindReopenedIssue, Name: "reopened"}
	AssignedTasks = EventType{Kind: KindAssignedTasks, Name: "assignedTasks"}
)

// Other returns the pass-through type for an unmapped event name.
func Other(name string) EventType {
	return EventType{Kind: KindOther, Name: name}
}

func (t EventType) String() string {
	return t.Name
}

// Event is something a Project can resolve.
type Event interface {
	Project() Project
	Type() EventType
	// Commit is nil unless the event carries commit information.
	Commit() Commit
	// Issue resolves the issue or pull request of the event.
	Issue() (Issue, error)
	// Comment resolves the comment of the event; nil, nil when there is none.
	Comment() (Comment, error)
}
