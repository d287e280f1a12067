package internal

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger returns an entry tagged with the component it logs for.
func NewLogger(component string) *logrus.Entry {
	name := "selfpm"
	if component != "" {
		name = name + "/" + component
	}
	return logrus.WithField("component", name)
}

// WithRequestID tags logger with the id of the request being served.
func WithRequestID(logger logrus.FieldLogger, requestID string) logrus.FieldLogger {
	if requestID == "" {
		return logger
	}
	return logger.WithField("request_id", requestID)
}

// ConfigureLogging sets the global level and format. An empty level keeps info.
func ConfigureLogging(cfg LoggingConfig) error {
	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
	if cfg.Level == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	return nil
}
