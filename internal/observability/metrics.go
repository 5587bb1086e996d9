package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "helpdesk"

// Metrics holds the Prometheus collectors for the service. All methods are
// safe on a nil receiver so collaborators may run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	errors            *prometheus.CounterVec
	assignments       *prometheus.CounterVec
	pollRuns          *prometheus.CounterVec
	pollDuration      prometheus.Histogram
	notifications     *prometheus.CounterVec
	openTickets       prometheus.Gauge
	unassignedTickets prometheus.Gauge
	assignableStaff   prometheus.Gauge
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP error responses by route, method and error code",
		}, []string{"route", "method", "code"}),
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "assignment",
			Name:      "outcomes_total",
			Help:      "Assignment attempts by outcome",
		}, []string{"outcome"}),
		pollRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingest",
			Name:      "poll_runs_total",
			Help:      "Mailbox poll cycles by result",
		}, []string{"status"}),
		pollDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingest",
			Name:      "poll_duration_seconds",
			Help:      "Duration of mailbox poll cycles",
			Buckets:   prometheus.DefBuckets,
		}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "notifications",
			Name:      "total",
			Help:      "Notification outbox activity by stage and result",
		}, []string{"stage", "status"}),
		openTickets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "tickets",
			Name:      "open",
			Help:      "Open tickets at the latest refresh",
		}),
		unassignedTickets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "tickets",
			Name:      "unassigned_open",
			Help:      "Open tickets without an assignee at the latest refresh",
		}),
		assignableStaff: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "staff",
			Name:      "assignable",
			Help:      "Active staff without open tickets at the latest refresh",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest counts a served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

// RecordAssignment counts one assignment outcome ("assigned", "already_exists",
// "no_staff_available" or "error").
func (m *Metrics) RecordAssignment(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

// RecordPoll returns a func that records the poll result and duration.
func (m *Metrics) RecordPoll() func(err error) {
	if m == nil {
		return func(error) {}
	}
	timer := prometheus.NewTimer(m.pollDuration)
	return func(err error) {
		timer.ObserveDuration()
		status := "success"
		if err != nil {
			status = "failure"
		}
		m.pollRuns.WithLabelValues(status).Inc()
	}
}

// RecordNotification counts outbox activity. stage is "enqueue" or "deliver".
func (m *Metrics) RecordNotification(stage string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.notifications.WithLabelValues(stage, status).Inc()
}

// SetTicketGauges records the latest ticket and staff counts.
func (m *Metrics) SetTicketGauges(open, unassigned, assignable int64) {
	if m == nil {
		return
	}
	m.openTickets.Set(float64(open))
	m.unassignedTickets.Set(float64(unassigned))
	m.assignableStaff.Set(float64(assignable))
}
