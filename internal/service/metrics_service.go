package service

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP
// traffic, cache behaviour and the clearance/validation workflows.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	clearanceGrants prometheus.Counter
	clearanceVoids  prometheus.Counter
	validations     *prometheus.CounterVec
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

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	clearanceGrants := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearances_granted_total",
		Help: "Total term clearances granted",
	})

	clearanceVoids := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clearances_revoked_total",
		Help: "Total term clearances revoked",
	})

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swtd_validations_total",
		Help: "Total SWTD validation outcomes recorded",
	}, []string{"status"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheHits, cacheMisses, clearanceGrants, clearanceVoids, validations, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		clearanceGrants: clearanceGrants,
		clearanceVoids:  clearanceVoids,
		validations:     validations,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// RecordHTTPRequest captures duration and count for one request.
func (s *MetricsService) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	s.requestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordCacheLookup counts a cache hit or miss.
func (s *MetricsService) RecordCacheLookup(hit bool) {
	if hit {
		s.cacheHits.Inc()
		return
	}
	s.cacheMisses.Inc()
}

// ClearanceGranted counts one grant.
func (s *MetricsService) ClearanceGranted() {
	s.clearanceGrants.Inc()
}

// ClearanceRevoked counts one revocation.
func (s *MetricsService) ClearanceRevoked() {
	s.clearanceVoids.Inc()
}

// ValidationRecorded counts one validation outcome by status.
func (s *MetricsService) ValidationRecorded(status string) {
	s.validations.WithLabelValues(status).Inc()
}
