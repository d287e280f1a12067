package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "selfpm_webhook_requests_total",
		Help: "Webhook requests received by provider.",
	}, []string{"provider"})
	parseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "selfpm_webhook_parse_errors_total",
		Help: "Webhook requests rejected while parsing.",
	}, []string{"provider"})
	eventsClassified = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "selfpm_events_classified_total",
		Help: "Events classified by canonical type.",
	}, []string{"provider", "type"})
	publishErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "selfpm_publish_errors_total",
		Help: "Failed publishes by driver.",
	}, []string{"driver"})
	sweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "selfpm_review_sweeps_total",
		Help: "Review sweeps by result.",
	}, []string{"result"})
	sweepFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "selfpm_review_project_failures_total",
		Help: "Projects that failed during a review sweep.",
	})
	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "selfpm_review_sweep_duration_seconds",
		Help:    "Duration of review sweeps.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, parseErrors, eventsClassified, publishErrors)
	prometheus.MustRegister(sweepsTotal, sweepFailures, sweepDuration)
}

func IncRequest(provider string) {
	requestsTotal.WithLabelValues(provider).Inc()
}

func IncParseError(provider string) {
	parseErrors.WithLabelValues(provider).Inc()
}

func IncClassified(provider, eventType string) {
	eventsClassified.WithLabelValues(provider, eventType).Inc()
}

func IncPublishError(driver string) {
	publishErrors.WithLabelValues(driver).Inc()
}

func IncSweepSkipped() {
	sweepsTotal.WithLabelValues("skipped").Inc()
}

func IncProjectFailure() {
	sweepFailures.Inc()
}

// ObserveSweep records a finished sweep.
func ObserveSweep(seconds float64, failures int) {
	result := "ok"
	if failures > 0 {
		result = "partial"
	}
	sweepsTotal.WithLabelValues(result).Inc()
	sweepDuration.Observe(seconds)
}

// ObserveSweepAborted records a sweep that could not visit any project.
func ObserveSweepAborted(seconds float64) {
	sweepsTotal.WithLabelValues("failed").Inc()
	sweepDuration.Observe(seconds)
}

// MetricsHandler serves the registered metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
