package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and
// the queue pipeline. It satisfies QueueDepthRecorder.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	ticketsIssued   *prometheus.CounterVec
	importRows      *prometheus.CounterVec
	emailsSent      prometheus.Counter
}

// NewMetricsService registers the collectors on a private registry.
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

	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Waiting tickets per destination",
	}, []string{"destination"})

	ticketsIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_issued_total",
		Help: "Tickets issued per destination",
	}, []string{"destination"})

	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_rows_total",
		Help: "Processed and skipped bulk import rows",
	}, []string{"kind", "outcome"})

	emailsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_emails_sent_total",
		Help: "Notification emails handed to the mailer",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, queueDepth, ticketsIssued, importRows, emailsSent, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		queueDepth:      queueDepth,
		ticketsIssued:   ticketsIssued,
		importRows:      importRows,
		emailsSent:      emailsSent,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records one handled request.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// SetQueueDepth records the waiting count at a destination.
func (m *MetricsService) SetQueueDepth(destination string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(destination).Set(float64(depth))
}

// TicketIssued counts an issued ticket.
func (m *MetricsService) TicketIssued(destination string) {
	if m == nil {
		return
	}
	m.ticketsIssued.WithLabelValues(destination).Inc()
}

// ImportRow counts one bulk import row outcome. kind is "schedule" or
// "roster"; outcome is "processed" or "skipped".
func (m *MetricsService) ImportRow(kind, outcome string) {
	if m == nil {
		return
	}
	m.importRows.WithLabelValues(kind, outcome).Inc()
}

// EmailSent counts a delivered notification.
func (m *MetricsService) EmailSent() {
	if m == nil {
		return
	}
	m.emailsSent.Inc()
}
