package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registration sources
const (
	// SourceProgram is the named program family
	SourceProgram = "program"
	// SourceUnnamed is the unnamed sequence topic
	SourceUnnamed = "unnamed"
	// SourceAlert is the alert topic
	SourceAlert = "alert"
)

// Metrics holds the scheduler's prometheus collectors
type Metrics struct {
	framesPublished    prometheus.Counter
	publishFailures    prometheus.Counter
	programsRegistered *prometheus.CounterVec
	decodeFailures     *prometheus.CounterVec
	programsRetired    prometheus.Counter
	alertsPlayed       prometheus.Counter
	catalogSize        prometheus.Gauge
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledmatrix",
			Subsystem: "scheduler",
			Name:      "frames_published_total",
			Help:      "Frames handed to the transport for the display topic.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledmatrix",
			Subsystem: "scheduler",
			Name:      "publish_failures_total",
			Help:      "Frames the transport refused to publish.",
		}),
		programsRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledmatrix",
			Subsystem: "catalog",
			Name:      "programs_registered_total",
			Help:      "Programs added or replaced, by source topic.",
		}, []string{"source"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledmatrix",
			Subsystem: "codec",
			Name:      "decode_failures_total",
			Help:      "Payloads dropped because they could not be decoded.",
		}, []string{"reason"}),
		programsRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledmatrix",
			Subsystem: "catalog",
			Name:      "programs_retired_total",
			Help:      "Programs evicted for not being refreshed.",
		}),
		alertsPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledmatrix",
			Subsystem: "scheduler",
			Name:      "alerts_played_total",
			Help:      "Alert programs played through.",
		}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ledmatrix",
			Subsystem: "catalog",
			Name:      "programs",
			Help:      "Programs currently in the catalog.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ledmatrix",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ledmatrix",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	reg.MustRegister(
		m.framesPublished,
		m.publishFailures,
		m.programsRegistered,
		m.decodeFailures,
		m.programsRetired,
		m.alertsPlayed,
		m.catalogSize,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// FramePublished counts a frame handed to the transport
func (m *Metrics) FramePublished() { m.framesPublished.Inc() }

// PublishFailed counts a frame the transport rejected
func (m *Metrics) PublishFailed() { m.publishFailures.Inc() }

// ProgramRegistered counts a decoded program by the topic family it arrived on
func (m *Metrics) ProgramRegistered(source string) {
	m.programsRegistered.WithLabelValues(source).Inc()
}

// DecodeFailed counts a dropped payload by failure reason
func (m *Metrics) DecodeFailed(reason string) {
	m.decodeFailures.WithLabelValues(reason).Inc()
}

// ProgramRetired counts a program removed for going stale
func (m *Metrics) ProgramRetired() { m.programsRetired.Inc() }

// AlertPlayed counts an alert that ran to completion
func (m *Metrics) AlertPlayed() { m.alertsPlayed.Inc() }

// SetCatalogSize records the number of registered programs
func (m *Metrics) SetCatalogSize(n int) { m.catalogSize.Set(float64(n)) }

// RecordHTTPRequest counts one status API request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
