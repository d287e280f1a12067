package review

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sosodev/duration"
)

// EveryThirtyMinutes is the default review period as an ISO-8601 duration.
const EveryThirtyMinutes = "PT30M"

// ParsePeriod parses an ISO-8601 duration such as "PT30M".
func ParsePeriod(value string) (time.Duration, error) {
	parsed, err := duration.Parse(value)
	if err != nil {
		return 0, errors.Wrapf(err, "parse review period %q", value)
	}
	period := parsed.ToTimeDuration()
	if period <= 0 {
		return 0, errors.Errorf("review period %q must be positive", value)
	}
	return period, nil
}
