package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for settings retrieval. A nil or
// disabled Metrics accepts every Record call and does nothing.
type Metrics struct {
	config MetricsConfig

	// Retrieval metrics
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	retries         prometheus.Counter
	retrievals      *prometheus.CounterVec
	targetsParsed   prometheus.Counter

	// Cache metrics
	cacheLookups       *prometheus.CounterVec
	cacheInvalidations prometheus.Counter

	// Policy metrics
	policyViolations *prometheus.CounterVec

	// Error metrics
	errorsByCode *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "xcodebuild_attempts_total",
				Help:      "Total number of xcodebuild invocations by outcome",
			},
			[]string{"outcome"},
		),
		attemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "xcodebuild_attempt_duration_seconds",
				Help:      "Duration of xcodebuild invocations in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "xcodebuild_retries_total",
				Help:      "Total number of retried xcodebuild invocations",
			},
		),
		retrievals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retrievals_total",
				Help:      "Total number of build settings retrievals by outcome",
			},
			[]string{"outcome"},
		),
		targetsParsed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "targets_parsed_total",
				Help:      "Total number of target settings blocks parsed",
			},
		),

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of settings cache lookups by result",
			},
			[]string{"result"},
		),
		cacheInvalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_invalidations_total",
				Help:      "Total number of project cache invalidations",
			},
		),

		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of settings policy violations",
			},
			[]string{"policy", "severity"},
		),

		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"class", "code"},
		),
	}

	registry.MustRegister(
		m.attempts,
		m.attemptDuration,
		m.retries,
		m.retrievals,
		m.targetsParsed,
		m.cacheLookups,
		m.cacheInvalidations,
		m.policyViolations,
		m.errorsByCode,
	)

	return m, nil
}

// Retrieval Metrics

// RecordAttempt records one xcodebuild invocation.
func (m *Metrics) RecordAttempt(outcome string, duration time.Duration) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
	m.attemptDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordRetry counts an invocation that is about to be repeated.
func (m *Metrics) RecordRetry() {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Inc()
}

// RecordRetrieval records the final outcome of a retrieval.
func (m *Metrics) RecordRetrieval(outcome string) {
	if m == nil || m.retrievals == nil {
		return
	}
	m.retrievals.WithLabelValues(outcome).Inc()
}

// RecordTargetParsed counts one emitted target.
func (m *Metrics) RecordTargetParsed() {
	if m == nil || m.targetsParsed == nil {
		return
	}
	m.targetsParsed.Inc()
}

// Cache Metrics

// RecordCacheLookup records a cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheInvalidation counts a project invalidation.
func (m *Metrics) RecordCacheInvalidation() {
	if m == nil || m.cacheInvalidations == nil {
		return
	}
	m.cacheInvalidations.Inc()
}

// Policy Metrics

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m == nil || m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Error Metrics

// RecordError records an error by class and code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByCode == nil {
		return
	}
	m.errorsByCode.WithLabelValues(errorClass, errorCode).Inc()
}

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing metrics on addr, or on
// the configured listen address when addr is empty. It returns nil when
// metrics are disabled.
func (m *Metrics) StartMetricsServer(addr string) *http.Server {
	if m == nil || !m.config.Enabled {
		return nil
	}
	if addr == "" {
		addr = m.config.ListenAddress
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server error")
		}
	}()

	return server
}
