package internal

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// WatermillLogger adapts a logrus logger to watermill.
type WatermillLogger struct {
	entry *logrus.Entry
}

func NewWatermillLogger(logger logrus.FieldLogger) watermill.LoggerAdapter {
	if logger == nil {
		logger = NewLogger("watermill")
	}
	return WatermillLogger{entry: logger.WithFields(logrus.Fields{})}
}

func (l WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).WithError(err).Error(msg)
}

func (l WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Info(msg)
}

func (l WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.entry.WithFields(logrus.Fields(fields)).Trace(msg)
}

func (l WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return WatermillLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}
