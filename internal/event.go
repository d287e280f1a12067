package internal

// Event is the publishable form of a classified event. RawPayload is the
// webhook body verbatim; it is empty for events raised by the review sweep.
type Event struct {
	Provider   string                 `json:"provider"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Project    string                 `json:"project"`
	RequestID  string                 `json:"request_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	RawPayload []byte                 `json:"-"`
}
