// Package metrics exposes loop and store counters for Prometheus.
// All methods are no-ops on a nil *Recorder.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

const namespace = "aeration"

type Recorder struct {
	registry *prometheus.Registry

	ticks          prometheus.Counter
	decisions      *prometheus.CounterVec
	sensorErrors   prometheus.Counter
	logFailures    prometheus.Counter
	publishErrors  *prometheus.CounterVec
	actuatorErrors prometheus.Counter
	malformedRows  prometheus.Counter
	historyErrors  prometheus.Counter
	reading        *prometheus.GaugeVec
	aeration       prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	m := &Recorder{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Monitoring loop ticks that produced a reading.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Actuation decisions by outcome.",
		}, []string{"decision"}),
		sensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_errors_total",
			Help:      "Ticks skipped because the sensor source failed.",
		}),
		logFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_write_failures_total",
			Help:      "Records that could not be appended to the log.",
		}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Presenter publish failures by kind (live, history).",
		}, []string{"kind"}),
		actuatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_errors_total",
			Help:      "Failed attempts to drive the aeration output.",
		}),
		malformedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_malformed_rows_total",
			Help:      "Log rows skipped while reading history.",
		}),
		historyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_read_errors_total",
			Help:      "History loads that degraded to an empty set.",
		}),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Latest sensor reading by field.",
		}, []string{"field"}),
		aeration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "on",
			Help:      "1 when the latest decision is ON.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.ticks,
		m.decisions,
		m.sensorErrors,
		m.logFailures,
		m.publishErrors,
		m.actuatorErrors,
		m.malformedRows,
		m.historyErrors,
		m.reading,
		m.aeration,
		m.httpRequests,
		m.httpDuration,
	)

	return m
}

// ObserveRecord updates tick, decision and latest-reading series.
func (m *Recorder) ObserveRecord(rec logic.Record) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.decisions.WithLabelValues(string(rec.Decision)).Inc()
	m.reading.WithLabelValues("temperature").Set(rec.Reading.Temperature)
	m.reading.WithLabelValues("oxygen").Set(rec.Reading.Oxygen)
	m.reading.WithLabelValues("humidity").Set(rec.Reading.Humidity)
	m.reading.WithLabelValues("ph").Set(rec.Reading.PH)
	if rec.Decision == logic.DecisionOn {
		m.aeration.Set(1)
	} else {
		m.aeration.Set(0)
	}
}

func (m *Recorder) SensorError() {
	if m == nil {
		return
	}
	m.sensorErrors.Inc()
}

func (m *Recorder) LogWriteFailed() {
	if m == nil {
		return
	}
	m.logFailures.Inc()
}

// PublishFailed counts a presenter failure; kind is "live" or "history".
func (m *Recorder) PublishFailed(kind string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(kind).Inc()
}

func (m *Recorder) ActuatorError() {
	if m == nil {
		return
	}
	m.actuatorErrors.Inc()
}

func (m *Recorder) MalformedRow() {
	if m == nil {
		return
	}
	m.malformedRows.Inc()
}

func (m *Recorder) HistoryError() {
	if m == nil {
		return
	}
	m.historyErrors.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their latency under route.
func (m *Recorder) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Recorder) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Recorder) Registry() *prometheus.Registry {
	return m.registry
}
