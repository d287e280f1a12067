package worker

import "context"

// Listener observes a worker. Nil hooks are skipped.
type Listener struct {
	OnStart func(ctx context.Context)
	OnExit  func(ctx context.Context)
	// OnMessageStart runs once the message is decoded and bound to its project.
	OnMessageStart  func(ctx context.Context, evt *Event)
	OnMessageFinish func(ctx context.Context, evt *Event, err error)
	// OnError runs for every failed message; evt is nil when decoding failed.
	OnError func(ctx context.Context, evt *Event, err error)
}
