package limits

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ratelimiter"

// Metrics contains Prometheus metrics for guards.
type Metrics struct {
	checks        *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	retryAfter    *prometheus.HistogramVec
	checkDuration *prometheus.HistogramVec
	windowUsed    *prometheus.GaugeVec
	journalErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// An empty namespace defaults to DefaultNamespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		checks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of admission checks performed",
			},
			[]string{"limiter", "result"},
		),

		rejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Total number of rejections by deciding window",
			},
			[]string{"limiter", "window"},
		),

		retryAfter: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retry_after_seconds",
				Help:      "Advised wait returned with rejections",
				Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 3600, 21600, 86400},
			},
			[]string{"limiter"},
		),

		checkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Duration of admission checks in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
			[]string{"limiter"},
		),

		windowUsed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "window_used",
				Help:      "Events currently counted in each window",
			},
			[]string{"limiter", "window"},
		),

		journalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_errors_total",
				Help:      "Total number of decisions that could not be journaled",
			},
			[]string{"limiter"},
		),
	}
}

// RecordCheck records an admission check.
func (m *Metrics) RecordCheck(limiter string, allowed bool, duration time.Duration) {
	result := "allowed"
	if !allowed {
		result = "blocked"
	}
	m.checks.WithLabelValues(limiter, result).Inc()
	m.checkDuration.WithLabelValues(limiter).Observe(duration.Seconds())
}

// RecordRejection records a rejection and the advised wait.
func (m *Metrics) RecordRejection(limiter string, window ratelimit.Window, retryAfter time.Duration) {
	m.rejections.WithLabelValues(limiter, window.String()).Inc()
	m.retryAfter.WithLabelValues(limiter).Observe(retryAfter.Seconds())
}

// UpdateWindowUsage sets the occupancy gauge for every window.
func (m *Metrics) UpdateWindowUsage(limiter string, statuses []ratelimit.WindowStatus) {
	for _, s := range statuses {
		m.windowUsed.WithLabelValues(limiter, s.Window.String()).Set(float64(s.Used))
	}
}

// RecordJournalError records a failed journal append.
func (m *Metrics) RecordJournalError(limiter string) {
	m.journalErrors.WithLabelValues(limiter).Inc()
}
