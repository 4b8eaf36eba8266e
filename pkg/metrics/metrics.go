package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_notifications_total",
			Help: "Total number of notifications handled by the dispatcher (count)",
		},
		[]string{"outcome"}, // dispatched, malformed, unexpected_item, gated, duplicate_terminal, error
	)

	ItemsRecordedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_items_recorded_total",
			Help: "Total number of expected items recorded against batches (count)",
		},
		[]string{"item"},
	)

	PhaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_phase_transitions_total",
			Help: "Total number of batch phase transitions (count)",
		},
		[]string{"from", "to"},
	)

	BatchesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weld_batches_active",
			Help: "Number of batches currently awaiting inputs or in flight (count)",
		},
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weld_dispatch_duration_ms",
			Help:    "Duration of dispatching one notification in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"outcome"},
	)

	ComposeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weld_compose_duration_ms",
			Help:    "Duration of composer calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	PersistDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weld_persist_duration_ms",
			Help:    "Duration of persistor calls in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"status"},
	)

	RecordsPersistedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weld_records_persisted_total",
			Help: "Total number of combined records written to the order store (count)",
		},
	)

	GateEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_gate_evaluations_total",
			Help: "Total number of gate rule evaluations (count)",
		},
		[]string{"result"}, // passed, rejected, error
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"component", "strategy", "reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weld_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weld_store_operations_total",
			Help: "Total number of orchestration store operations (count)",
		},
		[]string{"operation", "status"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weld_store_operation_duration_ms",
			Help:    "Duration of orchestration store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"operation"},
	)

	BatchesSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weld_batches_swept_total",
			Help: "Total number of batches failed by the dwell-time sweeper (count)",
		},
	)
)

func RegisterOrchestrationMetrics() {
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(ItemsRecordedTotal)
	prometheus.MustRegister(PhaseTransitionsTotal)
	prometheus.MustRegister(BatchesActive)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(ComposeDuration)
	prometheus.MustRegister(PersistDuration)
	prometheus.MustRegister(RecordsPersistedTotal)
	prometheus.MustRegister(StoreOperationsTotal)
	prometheus.MustRegister(StoreOperationDuration)
	prometheus.MustRegister(BatchesSweptTotal)
}

func RegisterGateMetrics() {
	prometheus.MustRegister(GateEvaluationsTotal)
	prometheus.MustRegister(FallbackUsageTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterHTTPMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveDispatchDuration(duration time.Duration, outcome string) {
	DispatchDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func ObserveComposeDuration(duration time.Duration, status string) {
	ComposeDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObservePersistDuration(duration time.Duration, status string) {
	PersistDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveStoreOperation(operation, status string, duration time.Duration) {
	StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func IncPhaseTransition(from, to string) {
	PhaseTransitionsTotal.WithLabelValues(from, to).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}
