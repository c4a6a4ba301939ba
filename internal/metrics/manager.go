package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/maxiofs/headerauth/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager defines the interface for metrics management
type Manager interface {
	// HTTP Metrics
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	RecordHTTPRequestSize(method, path string, size int64)

	// Authentication Metrics
	RecordAuthAttempt(result string)

	// Sync Metrics
	RecordSync(status string, attempts int, duration time.Duration)

	// Configuration Metrics
	RecordConfigReload(success bool)

	// Export
	GetMetricsHandler() http.Handler

	// HTTP Middleware
	Middleware() func(http.Handler) http.Handler

	// Lifecycle
	IsHealthy() bool
	Start(ctx context.Context) error
	Stop() error
}

// Auth attempt results
const (
	AuthAuthenticated = "authenticated"
	AuthDeferred      = "deferred"
)

// metricsManager implements the Manager interface using Prometheus
type metricsManager struct {
	config MetricsConfig

	registry *prometheus.Registry

	// HTTP Metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec

	// Authentication Metrics
	authAttemptsTotal *prometheus.CounterVec

	// Sync Metrics
	syncOutcomesTotal *prometheus.CounterVec
	syncAttempts      prometheus.Histogram
	syncDuration      *prometheus.HistogramVec

	// Configuration Metrics
	configReloadsTotal *prometheus.CounterVec

	started bool
	mu      sync.RWMutex
}

// MetricsConfig holds configuration for the metrics system
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Path      string `json:"path"`
	Namespace string `json:"namespace"`
}

// NewManager creates a new metrics manager
func NewManager(cfg config.MetricsConfig) Manager {
	metricsConfig := MetricsConfig{
		Enabled:   cfg.Enable,
		Path:      cfg.Path,
		Namespace: "headerauth",
	}

	if !metricsConfig.Enabled {
		return &noopManager{}
	}

	if metricsConfig.Path == "" {
		metricsConfig.Path = "/metrics"
	}

	manager := &metricsManager{
		config:   metricsConfig,
		registry: prometheus.NewRegistry(),
	}

	manager.initializeMetrics()
	return manager
}

// initializeMetrics sets up all Prometheus metrics
func (m *metricsManager) initializeMetrics() {
	namespace := m.config.Namespace

	// HTTP Metrics
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 2, 10),
		},
		[]string{"method", "path"},
	)

	// Authentication Metrics
	m.authAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Header authentication attempts by result",
		},
		[]string{"result"},
	)

	// Sync Metrics
	m.syncOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "outcomes_total",
			Help:      "Identity sync outcomes by status",
		},
		[]string{"status"},
	)

	m.syncAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "attempts",
			Help:      "Transactions opened per identity sync",
			Buckets:   []float64{0, 1, 2, 3},
		},
	)

	m.syncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Identity sync duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// Configuration Metrics
	m.configReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Configuration reloads by result",
		},
		[]string{"status"},
	)

	m.registerMetrics()
}

// registerMetrics registers all metrics with the Prometheus registry
func (m *metricsManager) registerMetrics() {
	metrics := []prometheus.Collector{
		// HTTP
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestSize,

		// Auth
		m.authAttemptsTotal,

		// Sync
		m.syncOutcomesTotal,
		m.syncAttempts,
		m.syncDuration,

		// Config
		m.configReloadsTotal,

		// Runtime
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}

	for _, metric := range metrics {
		m.registry.MustRegister(metric)
	}
}

// HTTP Metrics Implementation

func (m *metricsManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *metricsManager) RecordHTTPRequestSize(method, path string, size int64) {
	m.httpRequestSize.WithLabelValues(method, path).Observe(float64(size))
}

// Authentication Metrics Implementation

func (m *metricsManager) RecordAuthAttempt(result string) {
	m.authAttemptsTotal.WithLabelValues(result).Inc()
}

// Sync Metrics Implementation

func (m *metricsManager) RecordSync(status string, attempts int, duration time.Duration) {
	m.syncOutcomesTotal.WithLabelValues(status).Inc()
	m.syncAttempts.Observe(float64(attempts))
	m.syncDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Configuration Metrics Implementation

func (m *metricsManager) RecordConfigReload(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.configReloadsTotal.WithLabelValues(status).Inc()
}

// Export Implementation

func (m *metricsManager) GetMetricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTP Middleware Implementation

func (m *metricsManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriterWrapper{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			m.RecordHTTPRequest(r.Method, routeLabel(r), fmt.Sprintf("%d", wrapped.statusCode), time.Since(start))
			if r.ContentLength > 0 {
				m.RecordHTTPRequestSize(r.Method, routeLabel(r), r.ContentLength)
			}
		})
	}
}

// Lifecycle Implementation

func (m *metricsManager) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

func (m *metricsManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return fmt.Errorf("metrics manager already started")
	}

	m.started = true
	return nil
}

func (m *metricsManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return fmt.Errorf("metrics manager not started")
	}

	m.started = false
	return nil
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// noopManager is a no-op implementation when metrics are disabled
type noopManager struct{}

func (n *noopManager) RecordHTTPRequest(method, path, status string, duration time.Duration) {}
func (n *noopManager) RecordHTTPRequestSize(method, path string, size int64)                {}
func (n *noopManager) RecordAuthAttempt(result string)                                      {}
func (n *noopManager) RecordSync(status string, attempts int, duration time.Duration)       {}
func (n *noopManager) RecordConfigReload(success bool)                                      {}
func (n *noopManager) GetMetricsHandler() http.Handler                                      { return http.NotFoundHandler() }
func (n *noopManager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}
func (n *noopManager) IsHealthy() bool                 { return true }
func (n *noopManager) Start(ctx context.Context) error { return nil }
func (n *noopManager) Stop() error                     { return nil }
