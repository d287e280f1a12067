package internal

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// EventJobArgs is the job a consumer receives for a published event. Payload
// is the webhook body verbatim, or the encoded event when there is none.
type EventJobArgs struct {
	kind string

	Topic     string          `json:"topic"`
	Provider  string          `json:"provider"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Project   string          `json:"project"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

func (a EventJobArgs) Kind() string { return a.kind }

// riverQueuePublisher inserts one River job per published event. The client
// is insert-only; workers live in the consuming service.
type riverQueuePublisher struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	cfg    RiverQueueConfig
}

func newRiverQueuePublisher(ctx context.Context, cfg RiverQueueConfig) (*riverQueuePublisher, error) {
	if cfg.DSN == "" {
		return nil, errors.New("riverqueue dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "connect riverqueue database")
	}
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create river client")
	}
	return &riverQueuePublisher{pool: pool, client: client, cfg: cfg}, nil
}

func (p *riverQueuePublisher) Publish(ctx context.Context, topic string, event Event) error {
	payload := event.RawPayload
	if len(payload) == 0 {
		encoded, err := json.Marshal(event)
		if err != nil {
			return err
		}
		payload = encoded
	}

	args := EventJobArgs{
		kind:      p.cfg.Kind,
		Topic:     topic,
		Provider:  event.Provider,
		Name:      event.Name,
		Type:      event.Type,
		Project:   event.Project,
		RequestID: event.RequestID,
		Payload:   payload,
	}
	_, err := p.client.Insert(ctx, args, &river.InsertOpts{
		MaxAttempts: p.cfg.MaxAttempts,
		Priority:    p.cfg.Priority,
		Queue:       p.cfg.Queue,
		Tags:        p.cfg.Tags,
	})
	return errors.Wrapf(err, "insert %s job", p.cfg.Kind)
}

func (p *riverQueuePublisher) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *riverQueuePublisher) PublishForDrivers(ctx context.Context, topic string, event Event, drivers []string) error {
	return p.Publish(ctx, topic, event)
}
