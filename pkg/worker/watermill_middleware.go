package worker

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"selfpm/internal"
)

// MiddlewareFromWatermill runs a watermill handler middleware around a worker
// handler. The middleware sees a message rebuilt from the event: its payload
// and broker metadata, plus the classification of the event.
func MiddlewareFromWatermill(m message.HandlerMiddleware) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, evt *Event) error {
			wrapped := m(func(_ *message.Message) ([]*message.Message, error) {
				return nil, next(ctx, evt)
			})
			_, err := wrapped(eventMessage(evt))
			return err
		}
	}
}

func eventMessage(evt *Event) *message.Message {
	id := evt.RequestID
	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, message.Payload(evt.Payload))
	for key, value := range evt.Metadata {
		msg.Metadata.Set(key, value)
	}
	setIfEmpty(msg.Metadata, internal.MetadataProvider, evt.Provider)
	setIfEmpty(msg.Metadata, internal.MetadataEvent, evt.Name)
	setIfEmpty(msg.Metadata, internal.MetadataType, evt.Type)
	setIfEmpty(msg.Metadata, internal.MetadataProject, evt.Project)
	setIfEmpty(msg.Metadata, internal.MetadataRequestID, evt.RequestID)
	return msg
}

func setIfEmpty(md message.Metadata, key, value string) {
	if value != "" && md.Get(key) == "" {
		md.Set(key, value)
	}
}
