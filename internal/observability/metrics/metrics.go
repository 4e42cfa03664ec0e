package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "axr"

// Metrics groups the Prometheus collectors used by the marketplace client and
// the batch orchestrator. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry prometheus.Gatherer

	requests      *prometheus.CounterVec
	requestErrors *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	jobPolls      *prometheus.CounterVec
	jobOutcomes   *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics instance registered with a private
// registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = MustNew(prometheus.NewRegistry())
	})
	return defaultMetrics
}

// MustNew registers the collectors with reg. Collectors already registered
// under the same descriptor are reused; any other conflict panics.
func MustNew(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acp",
			Name:      "requests_total",
			Help:      "Total number of marketplace API requests.",
		}, []string{"endpoint", "method", "code"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "acp",
			Name:      "request_errors_total",
			Help:      "Marketplace API requests that failed at the transport layer or returned a server error.",
		}, []string{"endpoint", "method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "acp",
			Name:      "request_duration_seconds",
			Help:      "Marketplace API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint", "method"}),
		jobPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "polls_total",
			Help:      "Job status polls by observed phase.",
		}, []string{"phase"}),
		jobOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "outcomes_total",
			Help:      "Swap job attempts by final outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "runs_total",
			Help:      "Completed batch runs by result.",
		}, []string{"result"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of a batch run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}

	m.requests = register(reg, m.requests)
	m.requestErrors = register(reg, m.requestErrors)
	m.latency = register(reg, m.latency)
	m.jobPolls = register(reg, m.jobPolls)
	m.jobOutcomes = register(reg, m.jobOutcomes)
	m.batches = register(reg, m.batches)
	m.batchDuration = register(reg, m.batchDuration)
	return m
}

// register adds c to reg, reusing an identical collector that is already
// registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Gatherer exposes the underlying registry for export.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObserveHTTPRequest records one marketplace request. status 0 means the request
// never produced a response.
func (m *Metrics) ObserveHTTPRequest(endpoint, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	if status == 0 {
		code = "error"
	}
	m.requests.WithLabelValues(endpoint, method, code).Inc()
	if status == 0 || status >= 500 {
		m.requestErrors.WithLabelValues(endpoint, method).Inc()
	}
	m.latency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// IncJobPoll counts one status poll that observed phase.
func (m *Metrics) IncJobPoll(phase string) {
	if m == nil {
		return
	}
	if phase == "" {
		phase = "unknown"
	}
	m.jobPolls.WithLabelValues(phase).Inc()
}

// ObserveJobOutcome counts a finished attempt ("completed" or "failed").
func (m *Metrics) ObserveJobOutcome(outcome string) {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveBatch records a finished batch.
func (m *Metrics) ObserveBatch(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.batches.WithLabelValues(result).Inc()
	m.batchDuration.Observe(duration.Seconds())
}
