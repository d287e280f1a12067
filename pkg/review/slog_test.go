package review

import (
	"log/slog"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogrusHandlerForwardsRecords(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	log := slog.New(newLogrusHandler(logger)).With("queue", "review").WithGroup("job")

	log.Warn("job failed", "id", 7, slog.Group("error", "msg", "boom"))
	log.Debug("polling")

	require.Len(t, hook.AllEntries(), 2)
	warn := hook.AllEntries()[0]
	assert.Equal(t, logrus.WarnLevel, warn.Level)
	assert.Equal(t, "job failed", warn.Message)
	assert.Equal(t, "review", warn.Data["queue"])
	assert.Equal(t, int64(7), warn.Data["job.id"])
	assert.Equal(t, "boom", warn.Data["job.error.msg"])
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}

func TestLogrusHandlerLevels(t *testing.T) {
	logger, hook := test.NewNullLogger()
	log := slog.New(newLogrusHandler(logger))

	log.Error("down")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	log.Info("up")
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
}
