package worker

import (
	"github.com/sirupsen/logrus"

	"selfpm/internal"
)

func defaultLogger() logrus.FieldLogger {
	return internal.NewLogger("worker")
}
