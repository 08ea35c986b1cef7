package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	TransportMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_messages_total",
			Help: "Total number of messages received from the transport (count)",
		},
		[]string{"transport"},
	)

	TransportConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "transport_connected",
			Help: "Whether the transport is connected (1) or not (0) (state code)",
		},
		[]string{"transport"},
	)

	TransportConnectionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transport_connection_events_total",
			Help: "Total number of transport connection events (count)",
		},
		[]string{"transport", "event"},
	)

	IngestMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total number of messages processed by ingest, by outcome (count)",
		},
		[]string{"status"},
	)

	IngestProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_processing_duration_ms",
			Help:    "Decode and aggregate duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	RecordsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "senml_records_skipped_total",
			Help: "Total number of SenML records skipped for lacking a value (count)",
		},
	)

	MeasuresEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "measures_enqueued_total",
			Help: "Total number of measures placed on the bridge (count)",
		},
	)

	FilterEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_evaluations_total",
			Help: "Total number of sensor filter evaluations (count)",
		},
		[]string{"result"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	DeliveryUnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_units_total",
			Help: "Total number of delivery units processed, by outcome (count)",
		},
		[]string{"status"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "delivery_duration_ms",
			Help:    "Time to deliver or drop a unit, retries included, in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "reason"},
	)

	ResourcesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnocchi_resources_created_total",
			Help: "Total number of resource creation attempts (count)",
		},
		[]string{"kind", "status"},
	)

	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gnocchi_requests_total",
			Help: "Total number of requests sent to Gnocchi (count)",
		},
		[]string{"operation", "status"},
	)

	BackendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gnocchi_request_duration_ms",
			Help:    "Duration of Gnocchi requests in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"operation"},
	)

	MessageQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_queue_size",
			Help: "Current number of units waiting on the bridge (count)",
		},
		[]string{"bridge"},
	)

	MessageQueueWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_queue_wait_duration_ms",
			Help:    "Duration units wait on the bridge before delivery in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
		[]string{"bridge"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_read_duration_ms",
			Help:    "Duration of reading messages from Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

var registerOnce sync.Once

// Register adds every proxy collector to the default registry. Calling it
// more than once is harmless.
func Register() {
	registerOnce.Do(func() {
		RegisterTransportMetrics()
		RegisterIngestMetrics()
		RegisterDeliveryMetrics()
		RegisterCircuitBreakerMetrics()
		RegisterServerMetrics()
	})
}

func RegisterTransportMetrics() {
	prometheus.MustRegister(TransportMessagesTotal)
	prometheus.MustRegister(TransportConnected)
	prometheus.MustRegister(TransportConnectionEventsTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaConsumerLag)
	prometheus.MustRegister(KafkaReadDuration)
}

func RegisterIngestMetrics() {
	prometheus.MustRegister(IngestMessagesTotal)
	prometheus.MustRegister(IngestProcessingDuration)
	prometheus.MustRegister(RecordsSkippedTotal)
	prometheus.MustRegister(MeasuresEnqueuedTotal)
	prometheus.MustRegister(FilterEvaluationsTotal)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterDeliveryMetrics() {
	prometheus.MustRegister(DeliveryUnitsTotal)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(ResourcesCreatedTotal)
	prometheus.MustRegister(BackendRequestsTotal)
	prometheus.MustRegister(BackendRequestDuration)
	prometheus.MustRegister(MessageQueueSize)
	prometheus.MustRegister(MessageQueueWaitDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterServerMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func IncTransportMessage(transport string) {
	TransportMessagesTotal.WithLabelValues(transport).Inc()
}

func SetTransportConnected(transport string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	TransportConnected.WithLabelValues(transport).Set(v)
}

func IncTransportConnectionEvent(transport, event string) {
	TransportConnectionEventsTotal.WithLabelValues(transport, event).Inc()
}

func ObserveIngestDuration(duration time.Duration, status string) {
	IngestProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncIngestMessage(status string) {
	IngestMessagesTotal.WithLabelValues(status).Inc()
}

func AddRecordsSkipped(n int) {
	RecordsSkippedTotal.Add(float64(n))
}

func AddMeasuresEnqueued(n int) {
	MeasuresEnqueuedTotal.Add(float64(n))
}

func IncFilterEvaluation(result string) {
	FilterEvaluationsTotal.WithLabelValues(result).Inc()
}

func IncFallbackUsage(service, strategy, reason string) {
	FallbackUsageTotal.WithLabelValues(service, strategy, reason).Inc()
}

func ObserveDeliveryDuration(duration time.Duration, status string) {
	DeliveryUnitsTotal.WithLabelValues(status).Inc()
	DeliveryDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func IncRetryAttempt(service, reason string) {
	RetryAttemptsTotal.WithLabelValues(service, reason).Inc()
}

func IncResourceCreated(kind, status string) {
	ResourcesCreatedTotal.WithLabelValues(kind, status).Inc()
}

func ObserveBackendRequest(operation, status string, duration time.Duration) {
	BackendRequestsTotal.WithLabelValues(operation, status).Inc()
	BackendRequestDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func SetMessageQueueSize(bridge string, size int) {
	MessageQueueSize.WithLabelValues(bridge).Set(float64(size))
}

func ObserveMessageQueueWaitDuration(bridge string, duration time.Duration) {
	MessageQueueWaitDuration.WithLabelValues(bridge).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaReadDuration(service, topic string, duration time.Duration) {
	KafkaReadDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
