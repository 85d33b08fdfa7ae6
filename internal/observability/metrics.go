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

// Metrics stores Prometheus collectors used by the delivery run and the
// status server.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	deliveriesTotal      *prometheus.CounterVec
	deliveryDuration     *prometheus.HistogramVec
	throttleSleepSeconds *prometheus.HistogramVec
	persistenceFailures  *prometheus.CounterVec
	eligibleRecipients   *prometheus.GaugeVec
	runsTotal            *prometheus.CounterVec
	importedRecordsTotal *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "survey_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "survey_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "survey_engine",
				Name:      "deliveries_total",
				Help:      "Total number of delivery attempts by mechanism and outcome.",
			},
			[]string{"mechanism", "outcome"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "survey_engine",
				Name:      "delivery_duration_seconds",
				Help:      "Transport delivery duration in seconds grouped by mechanism.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"mechanism"},
		),
		throttleSleepSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "survey_engine",
				Name:      "throttle_sleep_seconds",
				Help:      "Pause observed between deliveries grouped by mechanism.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"mechanism"},
		),
		persistenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "survey_engine",
				Name:      "attempt_persistence_failures_total",
				Help:      "Delivery attempts that could not be recorded after a delivery.",
			},
			[]string{"mechanism"},
		),
		eligibleRecipients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "survey_engine",
				Name:      "eligible_recipients",
				Help:      "Recipients still eligible in the current run grouped by mechanism.",
			},
			[]string{"mechanism"},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "survey_engine",
				Name:      "runs_total",
				Help:      "Completed delivery runs by mechanism and result.",
			},
			[]string{"mechanism", "result"},
		),
		importedRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "survey_engine",
				Name:      "imported_records_total",
				Help:      "Rows processed by the importers by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveriesTotal,
		m.deliveryDuration,
		m.throttleSleepSeconds,
		m.persistenceFailures,
		m.eligibleRecipients,
		m.runsTotal,
		m.importedRecordsTotal,
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

func (m *Metrics) IncDelivery(mechanism string, successful bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if successful {
		outcome = "succeeded"
	}
	m.deliveriesTotal.WithLabelValues(normalizeLabel(mechanism), outcome).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(mechanism string, duration time.Duration) {
	if m == nil {
		return
	}
	m.deliveryDuration.WithLabelValues(normalizeLabel(mechanism)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) ObserveThrottleSleep(mechanism string, duration time.Duration) {
	if m == nil {
		return
	}
	m.throttleSleepSeconds.WithLabelValues(normalizeLabel(mechanism)).Observe(nonNegativeSeconds(duration))
}

func (m *Metrics) IncPersistenceFailure(mechanism string) {
	if m == nil {
		return
	}
	m.persistenceFailures.WithLabelValues(normalizeLabel(mechanism)).Inc()
}

func (m *Metrics) SetEligibleRecipients(mechanism string, count int) {
	if m == nil {
		return
	}
	m.eligibleRecipients.WithLabelValues(normalizeLabel(mechanism)).Set(float64(count))
}

func (m *Metrics) IncRun(mechanism string, result string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(normalizeLabel(mechanism), normalizeLabel(result)).Inc()
}

func (m *Metrics) AddImported(kind string, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.importedRecordsTotal.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Add(float64(count))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

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

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func nonNegativeSeconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
