package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	VerificationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_requests_total",
			Help: "Total number of verification calls by final result (count)",
		},
		[]string{"operation", "result"},
	)

	VerificationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_attempts_total",
			Help: "Total number of HTTP attempts made against the external authority (count)",
		},
		[]string{"operation"},
	)

	VerificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verification_duration_ms",
			Help:    "Duration of a verification call including retries in milliseconds",
			Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"operation", "result"},
	)

	WorkerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_messages_total",
			Help: "Total number of work items handled by disposition (count)",
		},
		[]string{"worker", "disposition"},
	)

	WorkerProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_processing_duration_ms",
			Help:    "Processing duration of one work item in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"worker", "disposition"},
	)

	OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_outcomes_total",
			Help: "Total number of outcomes persisted by status (count)",
		},
		[]string{"worker", "status"},
	)

	OutcomesRepublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_outcomes_republished_total",
			Help: "Total number of redelivered work items answered from the result store (count)",
		},
		[]string{"worker"},
	)

	DataIntegrityConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_outcome_conflicts_total",
			Help: "Total number of stored outcomes that differ from a recomputed outcome (count)",
		},
		[]string{"worker"},
	)

	WorkItemsDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_work_items_discarded_total",
			Help: "Total number of work items acked without a stored outcome (count)",
		},
		[]string{"worker", "reason"},
	)

	BrokerMessagesConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_consumed_total",
			Help: "Total number of messages received from the broker (count)",
		},
		[]string{"broker", "queue"},
	)

	BrokerMessagesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_published_total",
			Help: "Total number of messages published by result (count)",
		},
		[]string{"broker", "topic", "result"},
	)

	BrokerRequeuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_requeues_total",
			Help: "Total number of messages handed back for redelivery (count)",
		},
		[]string{"broker", "queue"},
	)

	BrokerPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_publish_duration_ms",
			Help:    "Duration of broker-acknowledged publishes in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"broker", "topic"},
	)

	ResultStoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_store_operations_total",
			Help: "Total number of result store operations (count)",
		},
		[]string{"backend", "operation", "status"},
	)

	ResultStoreDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "result_store_duration_ms",
			Help:    "Duration of result store operations in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"backend", "operation"},
	)

	RevocationChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revocation_checks_total",
			Help: "Total number of credential revocation lookups (count)",
		},
		[]string{"result"},
	)

	RevocationLookupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revocation_lookup_duration_ms",
			Help:    "Duration of revocation cache lookups in milliseconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	SupervisorTaskExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "supervisor_task_exits_total",
			Help: "Total number of supervised task exits by reason (count)",
		},
		[]string{"task", "reason"},
	)

	GatewayRequestsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_enqueued_total",
			Help: "Total number of verification requests enqueued by kind (count)",
		},
		[]string{"kind"},
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
)

var (
	verificationOnce   sync.Once
	workerOnce         sync.Once
	brokerOnce         sync.Once
	storeOnce          sync.Once
	circuitBreakerOnce sync.Once
	gatewayOnce        sync.Once
)

func RegisterVerificationMetrics() {
	verificationOnce.Do(func() {
		prometheus.MustRegister(VerificationRequestsTotal)
		prometheus.MustRegister(VerificationAttemptsTotal)
		prometheus.MustRegister(VerificationDuration)
	})
}

func RegisterWorkerMetrics() {
	workerOnce.Do(func() {
		prometheus.MustRegister(WorkerMessagesTotal)
		prometheus.MustRegister(WorkerProcessingDuration)
		prometheus.MustRegister(OutcomesTotal)
		prometheus.MustRegister(OutcomesRepublishedTotal)
		prometheus.MustRegister(DataIntegrityConflictsTotal)
		prometheus.MustRegister(WorkItemsDiscardedTotal)
		prometheus.MustRegister(SupervisorTaskExitsTotal)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(BrokerMessagesConsumedTotal)
		prometheus.MustRegister(BrokerMessagesPublishedTotal)
		prometheus.MustRegister(BrokerRequeuesTotal)
		prometheus.MustRegister(BrokerPublishDuration)
	})
}

func RegisterStoreMetrics() {
	storeOnce.Do(func() {
		prometheus.MustRegister(ResultStoreOperationsTotal)
		prometheus.MustRegister(ResultStoreDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterGatewayMetrics() {
	gatewayOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
		prometheus.MustRegister(RevocationChecksTotal)
		prometheus.MustRegister(RevocationLookupDuration)
		prometheus.MustRegister(GatewayRequestsEnqueuedTotal)
	})
}

func ObserveVerification(operation, result string, attempts int, duration time.Duration) {
	VerificationRequestsTotal.WithLabelValues(operation, result).Inc()
	VerificationAttemptsTotal.WithLabelValues(operation).Add(float64(attempts))
	VerificationDuration.WithLabelValues(operation, result).Observe(float64(duration.Milliseconds()))
}

func ObserveWorkerMessage(worker, disposition string, duration time.Duration) {
	WorkerMessagesTotal.WithLabelValues(worker, disposition).Inc()
	WorkerProcessingDuration.WithLabelValues(worker, disposition).Observe(float64(duration.Milliseconds()))
}

func IncOutcome(worker, status string) {
	OutcomesTotal.WithLabelValues(worker, status).Inc()
}

func IncRepublished(worker string) {
	OutcomesRepublishedTotal.WithLabelValues(worker).Inc()
}

func IncDataIntegrityConflict(worker string) {
	DataIntegrityConflictsTotal.WithLabelValues(worker).Inc()
}

func IncDiscarded(worker, reason string) {
	WorkItemsDiscardedTotal.WithLabelValues(worker, reason).Inc()
}

func IncConsumed(broker, queue string) {
	BrokerMessagesConsumedTotal.WithLabelValues(broker, queue).Inc()
}

func IncRequeued(broker, queue string) {
	BrokerRequeuesTotal.WithLabelValues(broker, queue).Inc()
}

func ObservePublish(broker, topic string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	BrokerMessagesPublishedTotal.WithLabelValues(broker, topic, result).Inc()
	BrokerPublishDuration.WithLabelValues(broker, topic).Observe(float64(duration.Milliseconds()))
}

func ObserveStoreOperation(backend, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ResultStoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	ResultStoreDuration.WithLabelValues(backend, operation).Observe(float64(duration.Milliseconds()))
}

func ObserveRevocationCheck(result string, duration time.Duration) {
	RevocationChecksTotal.WithLabelValues(result).Inc()
	RevocationLookupDuration.Observe(float64(duration.Microseconds()) / 1000)
}

func IncTaskExit(task, reason string) {
	SupervisorTaskExitsTotal.WithLabelValues(task, reason).Inc()
}

func IncEnqueued(kind string) {
	GatewayRequestsEnqueuedTotal.WithLabelValues(kind).Inc()
}
