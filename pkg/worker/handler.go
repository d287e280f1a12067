package worker

import "context"

// Handler processes one classified event. A non-nil error hands the message
// to the retry policy.
type Handler func(ctx context.Context, evt *Event) error

// Middleware wraps every topic and type handler of a worker.
type Middleware func(Handler) Handler
