package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP
// surface and the import pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	importRecords   *prometheus.CounterVec
	importPages     *prometheus.CounterVec
	jobTransitions  *prometheus.CounterVec
	sourceAPICalls  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	importRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_records_total",
		Help: "Records processed by the import pipeline",
	}, []string{"data_type", "result"})

	importPages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_pages_total",
		Help: "Pages fetched by the import pipeline",
	}, []string{"data_type"})

	jobTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_job_transitions_total",
		Help: "Import job status transitions",
	}, []string{"status"})

	sourceAPICalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "source_api_calls_total",
		Help: "Calls made to the booking platform API",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, importRecords, importPages, jobTransitions, sourceAPICalls, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		importRecords:   importRecords,
		importPages:     importPages,
		jobTransitions:  jobTransitions,
		sourceAPICalls:  sourceAPICalls,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveImportPage records the outcome counts of one imported page.
func (m *MetricsService) ObserveImportPage(dataType string, imported, updated, skipped int) {
	if m == nil {
		return
	}
	m.importPages.WithLabelValues(dataType).Inc()
	m.importRecords.WithLabelValues(dataType, "imported").Add(float64(imported))
	m.importRecords.WithLabelValues(dataType, "updated").Add(float64(updated))
	m.importRecords.WithLabelValues(dataType, "skipped").Add(float64(skipped))
}

// ObserveJobTransition counts import job status changes.
func (m *MetricsService) ObserveJobTransition(status string) {
	if m == nil {
		return
	}
	m.jobTransitions.WithLabelValues(status).Inc()
}

// AddSourceAPICalls accumulates calls made against the booking platform.
func (m *MetricsService) AddSourceAPICalls(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sourceAPICalls.Add(float64(n))
}
