package internal

import (
	"context"
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
)

const RequestIDHeader = "X-Request-Id"

type requestIDKey struct{}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID returns the id sent by the caller or a new one.
func RequestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	return watermill.NewUUID()
}
