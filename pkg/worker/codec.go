package worker

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"

	"selfpm/internal"
)

// Codec decodes broker messages into events.
type Codec interface {
	Decode(topic string, msg *message.Message) (*Event, error)
}

// DefaultCodec reads the event attributes from message metadata and falls
// back to the encoded event body sent for sweep events.
type DefaultCodec struct{}

func (DefaultCodec) Decode(topic string, msg *message.Message) (*Event, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		return nil, errors.Wrapf(err, "decode message %s", msg.UUID)
	}

	metadata := make(map[string]string, len(msg.Metadata))
	for key, value := range msg.Metadata {
		metadata[key] = value
	}

	evt := &Event{
		Provider:   msg.Metadata.Get(internal.MetadataProvider),
		Name:       msg.Metadata.Get(internal.MetadataEvent),
		Type:       msg.Metadata.Get(internal.MetadataType),
		Project:    msg.Metadata.Get(internal.MetadataProject),
		RequestID:  msg.Metadata.Get(internal.MetadataRequestID),
		Topic:      topic,
		Metadata:   metadata,
		Payload:    json.RawMessage(msg.Payload),
		Normalized: body,
	}

	var encoded internal.Event
	if err := json.Unmarshal(msg.Payload, &encoded); err == nil && encoded.Type != "" {
		evt.Provider = firstNonEmpty(evt.Provider, encoded.Provider)
		evt.Name = firstNonEmpty(evt.Name, encoded.Name)
		evt.Type = firstNonEmpty(evt.Type, encoded.Type)
		evt.Project = firstNonEmpty(evt.Project, encoded.Project)
		evt.RequestID = firstNonEmpty(evt.RequestID, encoded.RequestID)
		if encoded.Data != nil {
			evt.Normalized = encoded.Data
		}
	}
	return evt, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
