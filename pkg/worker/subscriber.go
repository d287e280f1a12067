package worker

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamaqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/hashicorp/go-multierror"
	stan "github.com/nats-io/stan.go"
	"github.com/pkg/errors"

	"selfpm/internal"
)

// MetadataDriver names the driver a merged subscriber received a message from.
const MetadataDriver = "driver"

type subscriberBuilder func(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error)

// subscriberBuilders mirror the publisher drivers the server publishes to,
// except http which has no consuming side.
var subscriberBuilders = map[string]subscriberBuilder{
	"gochannel": newGoChannelSubscriber,
	"amqp":      newAMQPSubscriber,
	"nats":      newNATSSubscriber,
	"kafka":     newKafkaSubscriber,
	"sql":       newSQLSubscriber,
}

// SubscriberDrivers lists the drivers BuildSubscriber accepts.
func SubscriberDrivers() []string {
	drivers := make([]string, 0, len(subscriberBuilders))
	for name := range subscriberBuilders {
		drivers = append(drivers, name)
	}
	sort.Strings(drivers)
	return drivers
}

// NewFromConfig creates a worker consuming from the subscriber described by cfg.
func NewFromConfig(cfg SubscriberConfig, opts ...Option) (*Worker, error) {
	sub, err := BuildSubscriber(cfg)
	if err != nil {
		return nil, err
	}
	return New(append(opts, WithSubscriber(sub))...), nil
}

// BuildSubscriber creates a Watermill subscriber from cfg. With several
// drivers the subscribers are merged and drivers that fail to start are
// skipped.
func BuildSubscriber(cfg SubscriberConfig) (message.Subscriber, error) {
	logger := internal.NewWatermillLogger(internal.NewLogger("worker"))
	if len(cfg.Drivers) > 0 {
		return buildMultiSubscriber(cfg, logger)
	}
	driver := cfg.Driver
	if driver == "" {
		driver = "gochannel"
	}
	return buildSingleSubscriber(cfg, logger, driver)
}

func buildSingleSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter, driver string) (message.Subscriber, error) {
	build, ok := subscriberBuilders[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return nil, errors.Errorf("unsupported subscriber driver: %s", driver)
	}
	return build(cfg, logger)
}

func buildMultiSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	drivers := uniqueStrings(append(append([]string{}, cfg.Drivers...), cfg.Driver))
	if len(drivers) == 0 {
		return nil, errors.New("at least one driver is required")
	}

	merged := &multiSubscriber{bufferSize: cfg.GoChannel.OutputChannelBuffer}
	for _, driver := range drivers {
		sub, err := buildSingleSubscriber(cfg, logger, driver)
		if err != nil {
			logger.Error("subscriber driver skipped", err, watermill.LogFields{"driver": driver})
			continue
		}
		merged.subscribers = append(merged.subscribers, namedSubscriber{driver: driver, sub: sub})
	}
	if len(merged.subscribers) == 0 {
		return nil, errors.New("no subscriber driver could be started")
	}
	return merged, nil
}

func newGoChannelSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
		Persistent:                     cfg.GoChannel.Persistent,
		BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
	}, logger), nil
}

func newAMQPSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if cfg.AMQP.URL == "" {
		return nil, errors.New("amqp url is required")
	}
	amqpCfg, err := amqpSubscriberConfig(cfg.AMQP.URL, cfg.AMQP.Mode)
	if err != nil {
		return nil, err
	}
	return retrySubscriber(func() (message.Subscriber, error) {
		return wmamaqp.NewSubscriber(amqpCfg, logger)
	})
}

func newNATSSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
		return nil, errors.New("nats cluster_id and client_id are required")
	}
	natsCfg := wmnats.StreamingSubscriberConfig{
		ClusterID:   cfg.NATS.ClusterID,
		ClientID:    cfg.NATS.ClientID + cfg.NATS.ClientIDSuffix,
		DurableName: cfg.NATS.DurableName,
		QueueGroup:  cfg.NATS.QueueGroup,
		Unmarshaler: wmnats.GobMarshaler{},
	}
	if cfg.NATS.URL != "" {
		natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
	}
	return retrySubscriber(func() (message.Subscriber, error) {
		return wmnats.NewStreamingSubscriber(natsCfg, logger)
	})
}

func newKafkaSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return wmkafka.NewSubscriber(wmkafka.SubscriberConfig{
		Brokers:       cfg.Kafka.Brokers,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}, nil, wmkafka.DefaultMarshaler{}, logger)
}

func newSQLSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
		return nil, errors.New("sql driver and dsn are required")
	}
	schema, offsets, err := sqlAdapters(cfg.SQL.Dialect)
	if err != nil {
		return nil, err
	}
	return retrySubscriber(func() (message.Subscriber, error) {
		db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, err
		}
		sub, err := wmsql.NewSubscriber(db, wmsql.SubscriberConfig{
			ConsumerGroup:    cfg.SQL.ConsumerGroup,
			SchemaAdapter:    schema,
			OffsetsAdapter:   offsets,
			InitializeSchema: cfg.SQL.InitializeSchema || cfg.SQL.AutoInitializeSchema,
		}, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &closingSubscriber{Subscriber: sub, closeFn: db.Close}, nil
	})
}

var (
	// subscriberAttempts bounds how often a broker connection is retried.
	subscriberAttempts = 10
	subscriberBackoff  = 2 * time.Second
)

func retrySubscriber(build func() (message.Subscriber, error)) (message.Subscriber, error) {
	var result *multierror.Error
	for attempt := 1; attempt <= subscriberAttempts; attempt++ {
		sub, err := build()
		if err == nil {
			return sub, nil
		}
		result = multierror.Append(result, errors.Wrapf(err, "attempt %d", attempt))
		if attempt < subscriberAttempts {
			time.Sleep(subscriberBackoff)
		}
	}
	return nil, result.ErrorOrNil()
}

// closingSubscriber also closes the database the SQL subscriber reads from.
type closingSubscriber struct {
	message.Subscriber
	closeFn func() error
}

func (c *closingSubscriber) Close() error {
	var result *multierror.Error
	if err := c.Subscriber.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.closeFn != nil {
		if err := c.closeFn(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type namedSubscriber struct {
	driver string
	sub    message.Subscriber
}

// multiSubscriber fans the messages of several brokers into one channel per
// topic and tags each message with its driver.
type multiSubscriber struct {
	subscribers []namedSubscriber
	bufferSize  int64
}

func (m *multiSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if len(m.subscribers) == 0 {
		return nil, errors.New("no subscribers configured")
	}
	buffer := m.bufferSize
	if buffer <= 0 {
		buffer = 64
	}

	channels := make([]<-chan *message.Message, 0, len(m.subscribers))
	for _, entry := range m.subscribers {
		ch, err := entry.sub.Subscribe(ctx, topic)
		if err != nil {
			return nil, errors.Wrapf(err, "subscribe %s on %s", topic, entry.driver)
		}
		channels = append(channels, ch)
	}

	out := make(chan *message.Message, buffer)
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(ch <-chan *message.Message, driver string) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					if msg.Metadata == nil {
						msg.Metadata = message.Metadata{}
					}
					msg.Metadata.Set(MetadataDriver, driver)
					select {
					case out <- msg:
					case <-ctx.Done():
						msg.Nack()
						return
					}
				}
			}
		}(ch, m.subscribers[i].driver)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

func (m *multiSubscriber) Close() error {
	var result *multierror.Error
	for _, entry := range m.subscribers {
		if err := entry.sub.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, entry.driver))
		}
	}
	return result.ErrorOrNil()
}

func amqpSubscriberConfig(url, mode string) (wmamaqp.Config, error) {
	switch strings.ToLower(mode) {
	case "", "durable_queue":
		return wmamaqp.NewDurableQueueConfig(url), nil
	case "nondurable_queue":
		return wmamaqp.NewNonDurableQueueConfig(url), nil
	case "durable_pubsub":
		return wmamaqp.NewDurablePubSubConfig(url, nil), nil
	case "nondurable_pubsub":
		return wmamaqp.NewNonDurablePubSubConfig(url, nil), nil
	default:
		return wmamaqp.Config{}, errors.Errorf("unsupported amqp mode: %s", mode)
	}
}

func sqlAdapters(dialect string) (wmsql.SchemaAdapter, wmsql.OffsetsAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, wmsql.DefaultPostgreSQLOffsetsAdapter{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, wmsql.DefaultMySQLOffsetsAdapter{}, nil
	default:
		return nil, nil, errors.Errorf("unsupported sql dialect: %s", dialect)
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
