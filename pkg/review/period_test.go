package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewPeriodHasCorrectFormat(t *testing.T) {
	period, err := ParsePeriod(EveryThirtyMinutes)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, period)
}

func TestParsePeriodRejectsInvalid(t *testing.T) {
	for _, value := range []string{"", "30m", "PT0S"} {
		_, err := ParsePeriod(value)
		assert.Error(t, err, value)
	}
}
