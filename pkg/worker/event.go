package worker

import (
	"encoding/json"

	"selfpm/pkg/domain"
)

// Event is a classified event received by the worker.
type Event struct {
	// Provider is the hosting provider, e.g. "github".
	Provider string `json:"provider"`
	// Name is the raw provider event name, e.g. "issues".
	Name string `json:"name"`
	// Type is the canonical event type, e.g. "newIssue" or "assignedTasks".
	Type string `json:"type"`
	// Project is the owner/name of the repository the event belongs to.
	Project   string `json:"project"`
	RequestID string `json:"request_id,omitempty"`
	Topic     string `json:"topic"`
	// Metadata is the broker metadata of the message.
	Metadata map[string]string `json:"metadata"`
	// Payload is the message body: the webhook body for webhook events and
	// the encoded event for sweep events.
	Payload    json.RawMessage        `json:"payload"`
	Normalized map[string]interface{} `json:"normalized"`
	// Managed is the stored project, set when the worker has a ProjectFinder.
	Managed domain.Project `json:"-"`
}
