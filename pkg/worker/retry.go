package worker

import (
	"context"
	"sync"
)

// RetryDecision defines whether a message should be retried or Nacked.
type RetryDecision struct {
	Retry bool
	Nack  bool
}

// RetryPolicy defines a policy for retrying failed messages.
type RetryPolicy interface {
	OnError(ctx context.Context, evt *Event, err error) RetryDecision
}

// NoRetry is a retry policy that never retries.
type NoRetry struct{}

// OnError always returns a decision to not retry and to Nack the message.
func (NoRetry) OnError(ctx context.Context, evt *Event, err error) RetryDecision {
	return RetryDecision{Retry: false, Nack: true}
}

// MaxAttempts redelivers a failing event until it has been tried max times,
// then acks it. Attempts are counted in memory per topic and request id.
type MaxAttempts struct {
	limit int

	mu       sync.Mutex
	attempts map[string]int
}

func NewMaxAttempts(limit int) *MaxAttempts {
	if limit < 1 {
		limit = 1
	}
	return &MaxAttempts{limit: limit, attempts: make(map[string]int)}
}

func (m *MaxAttempts) OnError(_ context.Context, evt *Event, _ error) RetryDecision {
	if evt == nil || evt.RequestID == "" {
		return RetryDecision{Nack: true}
	}
	key := evt.Topic + "/" + evt.RequestID

	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[key]++
	if m.attempts[key] < m.limit {
		return RetryDecision{Retry: true, Nack: true}
	}
	delete(m.attempts, key)
	return RetryDecision{}
}
