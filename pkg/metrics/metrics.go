package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Full batch fan-out duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~2.5min
		},
		[]string{"outcome"},
	)

	RecipientWriteCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recipient_write_count",
			Help: "Total per-recipient notification writes",
		},
		[]string{"status"}, // status: sent, failed
	)

	BatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_count",
			Help: "Total dispatch batches by terminal status",
		},
		[]string{"status"},
	)
)

func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

func RecordDispatchDuration(outcome string, duration time.Duration) {
	DispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func IncrementRecipientWrite(status string) {
	RecipientWriteCount.WithLabelValues(status).Inc()
}

func IncrementBatch(status string) {
	BatchCount.WithLabelValues(status).Inc()
}
