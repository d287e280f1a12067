package internal

import (
	"context"
	"encoding/json"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"selfpm/pkg/domain"
)

// Dispatcher resolves project events by routing them through the rules and
// publishing every match.
type Dispatcher struct {
	rules     *RuleEngine
	publisher Publisher
	logger    logrus.FieldLogger
}

func NewDispatcher(rules *RuleEngine, publisher Publisher, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = NewLogger("dispatch")
	}
	return &Dispatcher{rules: rules, publisher: publisher, logger: logger}
}

// Resolve publishes evt to every topic its rules emit. Events matching no
// rule are dropped.
func (d *Dispatcher) Resolve(ctx context.Context, evt domain.Event) error {
	out := FromDomainEvent(ctx, evt)
	logger := WithRequestID(d.logger, out.RequestID).WithFields(logrus.Fields{
		"provider": out.Provider,
		"project":  out.Project,
		"event":    out.Name,
		"type":     out.Type,
	})
	IncClassified(out.Provider, out.Type)

	matches := d.rules.EvaluateWithLogger(out, logger)
	if len(matches) == 0 {
		logger.Debug("no rule matched")
		return nil
	}

	var result *multierror.Error
	for _, match := range matches {
		if err := d.publisher.PublishForDrivers(ctx, match.Topic, out, match.Drivers); err != nil {
			logger.WithError(err).WithField("topic", match.Topic).Warn("publish failed")
			result = multierror.Append(result, errors.Wrapf(err, "publish %s", match.Topic))
			continue
		}
		logger.WithField("topic", match.Topic).Info("event published")
	}
	return result.ErrorOrNil()
}

// FromDomainEvent builds the publishable form of evt. Webhook events keep
// their name and body; other events are named after their type.
func FromDomainEvent(ctx context.Context, evt domain.Event) Event {
	out := Event{
		Type:      evt.Type().String(),
		Name:      evt.Type().String(),
		RequestID: RequestIDFromContext(ctx),
	}
	if project := evt.Project(); project != nil {
		out.Provider = project.Provider()
		out.Project = project.RepoFullName()
	}
	if raw, ok := evt.(interface {
		Name() string
		Payload() json.RawMessage
	}); ok {
		out.Name = raw.Name()
		out.RawPayload = raw.Payload()
	}
	return out
}
