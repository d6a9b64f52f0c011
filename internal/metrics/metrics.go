// Package metrics exposes Prometheus counters for the pipeline stages and
// the preview server.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starford/dms/internal/workflow"
)

// Metrics owns a private registry; nothing is registered globally.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	scansTotal      prometheus.Counter
	scanFiles       *prometheus.GaugeVec
	summariesTotal  *prometheus.CounterVec
	summaryDuration *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	entriesPlaced   prometheus.Counter
	entriesSkipped  prometheus.Counter
}

// New creates the metric set.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dms",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dms",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dms",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
		},
	)
	scansTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dms",
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total completed scans.",
		},
	)
	scanFiles := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dms",
			Subsystem: "scan",
			Name:      "files",
			Help:      "Files in the latest change report by kind.",
		},
		[]string{"kind"},
	)
	summariesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dms",
			Subsystem: "summarize",
			Name:      "requests_total",
			Help:      "Summarizer backend calls by outcome.",
		},
		[]string{"outcome"},
	)
	summaryDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dms",
			Subsystem: "summarize",
			Name:      "duration_seconds",
			Help:      "Summarizer backend call duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"outcome"},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dms",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Document rewrites by kind.",
		},
		[]string{"kind"},
	)
	entriesPlaced := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dms",
			Subsystem: "reconcile",
			Name:      "entries_placed_total",
			Help:      "Entries written into the document.",
		},
	)
	entriesSkipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dms",
			Subsystem: "reconcile",
			Name:      "entries_skipped_total",
			Help:      "Entries left unplaced for lack of an anchor.",
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		scansTotal,
		scanFiles,
		summariesTotal,
		summaryDuration,
		runsTotal,
		entriesPlaced,
		entriesSkipped,
	)

	return &Metrics{
		registry:        registry,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		scansTotal:      scansTotal,
		scanFiles:       scanFiles,
		summariesTotal:  summariesTotal,
		summaryDuration: summaryDuration,
		runsTotal:       runsTotal,
		entriesPlaced:   entriesPlaced,
		entriesSkipped:  entriesSkipped,
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveScan records a finished scan.
func (m *Metrics) ObserveScan(r *workflow.ChangeReport) {
	m.scansTotal.Inc()
	m.scanFiles.WithLabelValues("new").Set(float64(len(r.NewFiles)))
	m.scanFiles.WithLabelValues("changed").Set(float64(len(r.ChangedFiles)))
	m.scanFiles.WithLabelValues("missing").Set(float64(len(r.MissingFiles)))
}

// ObserveSummary records one summarizer call.
func (m *Metrics) ObserveSummary(outcome string, took time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.summariesTotal.WithLabelValues(outcome).Inc()
	m.summaryDuration.WithLabelValues(outcome).Observe(took.Seconds())
}

// ObserveRun records one document rewrite.
func (m *Metrics) ObserveRun(kind string, placed, skipped int) {
	m.runsTotal.WithLabelValues(kind).Inc()
	m.entriesPlaced.Add(float64(placed))
	m.entriesSkipped.Add(float64(skipped))
}

// Middleware counts requests by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requestTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Flush keeps SSE streaming working through the recorder.
func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
