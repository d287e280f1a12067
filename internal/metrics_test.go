package internal

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSweepMetricsByResult(t *testing.T) {
	ok := testutil.ToFloat64(sweepsTotal.WithLabelValues("ok"))
	partial := testutil.ToFloat64(sweepsTotal.WithLabelValues("partial"))
	failed := testutil.ToFloat64(sweepsTotal.WithLabelValues("failed"))
	skipped := testutil.ToFloat64(sweepsTotal.WithLabelValues("skipped"))

	ObserveSweep(1.5, 0)
	ObserveSweep(2, 3)
	ObserveSweepAborted(0.1)
	IncSweepSkipped()

	assert.Equal(t, ok+1, testutil.ToFloat64(sweepsTotal.WithLabelValues("ok")))
	assert.Equal(t, partial+1, testutil.ToFloat64(sweepsTotal.WithLabelValues("partial")))
	assert.Equal(t, failed+1, testutil.ToFloat64(sweepsTotal.WithLabelValues("failed")))
	assert.Equal(t, skipped+1, testutil.ToFloat64(sweepsTotal.WithLabelValues("skipped")))
}
