package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline run duration (seconds), by scope: user or admin
	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "licensewatch_pipeline_run_duration_seconds",
			Help:    "Duration of one expiring-license notification run",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"scope", "status"},
	)

	// Licenses picked by the selector
	LicensesSelected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensewatch_licenses_selected_total",
			Help: "Total number of licenses selected as expired or expiring",
		},
		[]string{"state"}, // state: expired, expiring
	)

	// Digests handed to the SMTP transport
	DigestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensewatch_digests_total",
			Help: "Total number of digest emails by outcome",
		},
		[]string{"status"}, // status: sent, failed
	)

	// Licenses skipped because no recipient could be resolved
	RecipientSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licensewatch_recipient_unresolved_total",
			Help: "Licenses skipped because no recipient address could be resolved",
		},
	)

	// notification_sent updates that failed
	MarkNotifiedFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "licensewatch_mark_notified_failures_total",
			Help: "Failed notification_sent updates after a successful send",
		},
	)

	// SMTP send latency (seconds)
	SMTPSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "licensewatch_smtp_send_duration_seconds",
			Help:    "SMTP send latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"status"},
	)

	// Installed per-user schedules
	ScheduledUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "licensewatch_scheduled_users",
			Help: "Number of users with an installed notification schedule",
		},
	)

	// Slow database queries
	SlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "licensewatch_db_slow_queries_total",
			Help: "Total number of database queries above the slow threshold",
		},
		[]string{"sql"},
	)

	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// MQ consume latency (milliseconds)
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)
)

// RecordPipelineRun records one pipeline run
func RecordPipelineRun(scope, status string, duration time.Duration) {
	PipelineRunDuration.WithLabelValues(scope, status).Observe(duration.Seconds())
}

// AddLicensesSelected counts selector output by state
func AddLicensesSelected(expired, expiring int) {
	LicensesSelected.WithLabelValues("expired").Add(float64(expired))
	LicensesSelected.WithLabelValues("expiring").Add(float64(expiring))
}

// IncrementDigest counts a digest outcome
func IncrementDigest(status string) {
	DigestsSent.WithLabelValues(status).Inc()
}

// RecordSMTPSend records SMTP latency
func RecordSMTPSend(status string, duration time.Duration) {
	SMTPSendDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncrementSlowQuery counts a slow query
func IncrementSlowQuery(sql string, _ time.Duration) {
	SlowQueries.WithLabelValues(sql).Inc()
}

// RecordHTTPRequestDuration records HTTP latency
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordMQConsumeLatency records MQ consume latency
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}
