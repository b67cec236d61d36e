package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for recipe runs.
// A zero or disabled Metrics accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Graph metrics
	strategySelections *prometheus.CounterVec
	declarations       *prometheus.CounterVec
	edges              *prometheus.CounterVec
	graphDepth         prometheus.Gauge

	// Policy metrics
	policyViolations *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Watch metrics
	configReloads *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of recipe runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of recipe runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_build_duration_seconds",
				Help:      "Duration of strategy selection and graph construction in seconds",
				Buckets:   buckets,
			},
			[]string{"strategy"},
		),

		strategySelections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strategy_selections_total",
				Help:      "Total number of strategy selections by strategy",
			},
			[]string{"strategy"},
		),
		declarations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "declarations_total",
				Help:      "Total number of resources declared by kind",
			},
			[]string{"kind"},
		),
		edges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "edges_total",
				Help:      "Total number of dependency edges emitted by type",
			},
			[]string{"type"},
		),
		graphDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "graph_depth",
				Help:      "Number of levels in the most recently built graph",
			},
		),

		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations by policy and severity",
			},
			[]string{"policy", "severity"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of configuration reloads by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.strategySelections,
		m.declarations,
		m.edges,
		m.graphDepth,
		m.policyViolations,
		m.errorsByClass,
		m.errorsByCode,
		m.configReloads,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m == nil || m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a completed run with its status, strategy and duration.
func (m *Metrics) RecordRunCompleted(status, strategy string, duration time.Duration) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	if strategy != "" {
		m.runDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	}
}

// Graph Metrics

// RecordStrategySelection counts a selected strategy.
func (m *Metrics) RecordStrategySelection(strategy string) {
	if m == nil || m.strategySelections == nil {
		return
	}
	m.strategySelections.WithLabelValues(strategy).Inc()
}

// RecordGraph records declaration counts per kind, edge counts per type and depth.
func (m *Metrics) RecordGraph(kinds map[string]int, edgeTypes map[string]int, depth int) {
	if m == nil || m.declarations == nil {
		return
	}
	for kind, n := range kinds {
		m.declarations.WithLabelValues(kind).Add(float64(n))
	}
	for typ, n := range edgeTypes {
		m.edges.WithLabelValues(typ).Add(float64(n))
	}
	m.graphDepth.Set(float64(depth))
}

// Policy Metrics

// RecordPolicyViolation counts a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m == nil || m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m == nil || m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Watch Metrics

// RecordConfigReload counts a configuration reload with its result (ok, error).
func (m *Metrics) RecordConfigReload(result string) {
	if m == nil || m.configReloads == nil {
		return
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
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

// StartMetricsServer starts an HTTP server to expose metrics.
// It returns nil when metrics are disabled.
func (m *Metrics) StartMetricsServer() *http.Server {
	if m == nil || !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()

	return server
}
