package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the recorder. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	EventsTotal          *prometheus.CounterVec
	EventsDroppedTotal   *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
	Recording            prometheus.Gauge
	APICallDuration      *prometheus.HistogramVec
	ExportDuration       *prometheus.HistogramVec
	ExportBytesTotal     *prometheus.CounterVec
}

// New creates the collectors on a private registry so that several hubs can
// coexist in one process (and in tests).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recorder",
			Subsystem: "session",
			Name:      "events_total",
			Help:      "Total number of recorded events by event type.",
		}, []string{"event_type"}),
		EventsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recorder",
			Subsystem: "session",
			Name:      "events_dropped_total",
			Help:      "Total number of events not recorded, by reason.",
		}, []string{"reason"}), // reason: paused, idle, invalid, ended
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recorder",
			Subsystem: "hub",
			Name:      "notifications_dropped_total",
			Help:      "Total number of notifications dropped because a subscriber buffer was full.",
		}),
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "recorder",
			Subsystem: "hub",
			Name:      "recording",
			Help:      "1 while a session is actively recording, 0 otherwise.",
		}),
		APICallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recorder",
			Subsystem: "http_capture",
			Name:      "request_duration_seconds",
			Help:      "Duration of captured outbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		ExportDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "recorder",
			Subsystem: "export",
			Name:      "duration_seconds",
			Help:      "Time spent rendering an export.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		ExportBytesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recorder",
			Subsystem: "export",
			Name:      "bytes_total",
			Help:      "Total bytes produced by exports.",
		}, []string{"format"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) DropEvent(reason string) {
	if m == nil {
		return
	}
	m.EventsDroppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) DropNotification() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

func (m *Metrics) SetRecording(on bool) {
	if m == nil {
		return
	}
	if on {
		m.Recording.Set(1)
	} else {
		m.Recording.Set(0)
	}
}

func (m *Metrics) ObserveAPICall(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.APICallDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

func (m *Metrics) ObserveExport(format string, d time.Duration, size int) {
	if m == nil {
		return
	}
	m.ExportDuration.WithLabelValues(format).Observe(d.Seconds())
	m.ExportBytesTotal.WithLabelValues(format).Add(float64(size))
}
