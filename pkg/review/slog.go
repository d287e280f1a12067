package review

import (
	"context"
	"log/slog"

	"github.com/sirupsen/logrus"
)

// logrusHandler forwards slog records to logrus. River only logs through
// slog.
type logrusHandler struct {
	logger logrus.FieldLogger
	fields logrus.Fields
	group  string
}

func newLogrusHandler(logger logrus.FieldLogger) *logrusHandler {
	return &logrusHandler{logger: logger, fields: logrus.Fields{}}
}

// Enabled defers level filtering to logrus.
func (h *logrusHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *logrusHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make(logrus.Fields, len(h.fields)+record.NumAttrs())
	for key, value := range h.fields {
		fields[key] = value
	}
	record.Attrs(func(attr slog.Attr) bool {
		addAttr(fields, h.group, attr)
		return true
	})

	entry := h.logger.WithFields(fields)
	switch {
	case record.Level >= slog.LevelError:
		entry.Error(record.Message)
	case record.Level >= slog.LevelWarn:
		entry.Warn(record.Message)
	case record.Level >= slog.LevelInfo:
		entry.Info(record.Message)
	default:
		entry.Debug(record.Message)
	}
	return nil
}

func (h *logrusHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(logrus.Fields, len(h.fields)+len(attrs))
	for key, value := range h.fields {
		fields[key] = value
	}
	for _, attr := range attrs {
		addAttr(fields, h.group, attr)
	}
	return &logrusHandler{logger: h.logger, fields: fields, group: h.group}
}

func (h *logrusHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &logrusHandler{logger: h.logger, fields: h.fields, group: h.group + name + "."}
}

func addAttr(fields logrus.Fields, group string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		prefix := group
		if attr.Key != "" {
			prefix = group + attr.Key + "."
		}
		for _, child := range attr.Value.Group() {
			addAttr(fields, prefix, child)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	fields[group+attr.Key] = attr.Value.Any()
}
