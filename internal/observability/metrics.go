package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "notification_relay"

// Metrics holds the Prometheus collectors shared by the API and the worker.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	admittedTotal         *prometheus.CounterVec
	duplicateRequests     prometheus.Counter
	deliveredTotal        *prometheus.CounterVec
	failedTotal           *prometheus.CounterVec
	sendDuration          *prometheus.HistogramVec
	workerInflight        *prometheus.GaugeVec
	retryScheduledTotal   *prometheus.CounterVec
	deadLetteredTotal     *prometheus.CounterVec
	duplicatesSkipped     *prometheus.CounterVec
	circuitOpen           *prometheus.GaugeVec
	circuitRejectedTotal  *prometheus.CounterVec
	malformedMessageTotal *prometheus.CounterVec
	testSendsTotal        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests processed by method, route and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		admittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_admitted_total",
				Help:      "Notifications accepted by the API and published to the broker.",
			},
			[]string{"channel"},
		),
		duplicateRequests: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "duplicate_requests_total",
				Help:      "Admission requests rejected because the request_id was already claimed.",
			},
		),
		deliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_delivered_total",
				Help:      "Notifications delivered by a channel.",
			},
			[]string{"channel"},
		),
		failedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "notifications_failed_total",
				Help:      "Notifications that ended in failed state, by reason.",
			},
			[]string{"channel", "reason"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "notification_send_duration_seconds",
				Help:      "Channel send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		workerInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "worker_inflight",
				Help:      "Messages currently being processed by the worker.",
			},
			[]string{"channel"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retry_scheduled_total",
				Help:      "Jobs republished for another attempt.",
			},
			[]string{"channel"},
		),
		deadLetteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dead_lettered_total",
				Help:      "Jobs published to the dead-letter route.",
			},
			[]string{"channel"},
		),
		duplicatesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "duplicates_skipped_total",
				Help:      "Redelivered jobs acknowledged without a channel call because they were already delivered.",
			},
			[]string{"channel"},
		),
		circuitOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "circuit_breaker_open",
				Help:      "1 while the channel circuit breaker is open.",
			},
			[]string{"channel"},
		),
		circuitRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "circuit_breaker_rejected_total",
				Help:      "Attempts rejected without a channel call because the breaker was open.",
			},
			[]string{"channel"},
		),
		malformedMessageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "malformed_messages_total",
				Help:      "Messages dropped because they could not be decoded.",
			},
			[]string{"queue"},
		),
		testSendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "test_sends_total",
				Help:      "Direct channel sends triggered through the test endpoints, by outcome.",
			},
			[]string{"channel", "outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.admittedTotal,
		m.duplicateRequests,
		m.deliveredTotal,
		m.failedTotal,
		m.sendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
		m.deadLetteredTotal,
		m.duplicatesSkipped,
		m.circuitOpen,
		m.circuitRejectedTotal,
		m.malformedMessageTotal,
		m.testSendsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncAdmitted(channel string) {
	if m == nil {
		return
	}
	m.admittedTotal.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) IncDuplicateRequest() {
	if m == nil {
		return
	}
	m.duplicateRequests.Inc()
}

func (m *Metrics) IncDelivered(channel string) {
	if m == nil {
		return
	}
	m.deliveredTotal.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) IncFailed(channel string, reason string) {
	if m == nil {
		return
	}
	m.failedTotal.WithLabelValues(label(channel), label(reason)).Inc()
}

func (m *Metrics) ObserveSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.WithLabelValues(label(channel)).Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) DecWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(label(channel)).Dec()
}

func (m *Metrics) IncRetryScheduled(channel string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) IncDeadLettered(channel string) {
	if m == nil {
		return
	}
	m.deadLetteredTotal.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) IncDuplicateSkipped(channel string) {
	if m == nil {
		return
	}
	m.duplicatesSkipped.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) SetCircuitOpen(channel string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1
	}
	m.circuitOpen.WithLabelValues(label(channel)).Set(value)
}

func (m *Metrics) IncCircuitRejected(channel string) {
	if m == nil {
		return
	}
	m.circuitRejectedTotal.WithLabelValues(label(channel)).Inc()
}

func (m *Metrics) IncMalformedMessage(queue string) {
	if m == nil {
		return
	}
	m.malformedMessageTotal.WithLabelValues(label(queue)).Inc()
}

func (m *Metrics) IncTestSend(channel string, outcome string) {
	if m == nil {
		return
	}
	m.testSendsTotal.WithLabelValues(label(channel), label(outcome)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, path).Observe(duration.Seconds())
}

// routePath labels by registered route so path parameters do not explode
// label cardinality.
func routePath(c *fiber.Ctx) string {
	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if status := c.Response().StatusCode(); status != 0 {
		return status
	}
	return fiber.StatusOK
}

func label(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
