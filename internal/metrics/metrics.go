// Package metrics holds the prometheus collectors for the registry and the
// script bridge.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "modmgr"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics is a set of collectors bound to one registerer.
type Metrics struct {
	// PackageOps counts package operations by op (install, uninstall, update,
	// reset) and result.
	PackageOps *prometheus.CounterVec
	// BucketOps counts bucket operations by op (add, remove, update) and result.
	BucketOps *prometheus.CounterVec
	// Signals counts callback signals seen on script diagnostic streams by outcome
	// (dispatched, rejected_token, rejected_plugin, denied, malformed, failed).
	Signals *prometheus.CounterVec
	// ScriptRuns counts script process executions by result (ok, error, timeout).
	ScriptRuns *prometheus.CounterVec
	// PluginRuns counts plugin entry executions by result.
	PluginRuns *prometheus.CounterVec
	// MountedMods is the number of currently mounted mod instances.
	MountedMods prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers a fresh set of collectors on reg. A nil reg uses a private
// registry, which keeps tests independent of each other.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		PackageOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "registry",
			Name:      "package_operations_total",
			Help:      "Package operations by operation and result",
		}, []string{"op", "result"}),
		BucketOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "registry",
			Name:      "bucket_operations_total",
			Help:      "Bucket operations by operation and result",
		}, []string{"op", "result"}),
		Signals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "bridge",
			Name:      "signals_total",
			Help:      "Callback signals observed on script diagnostic streams by outcome",
		}, []string{"outcome"}),
		ScriptRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "bridge",
			Name:      "script_runs_total",
			Help:      "Script process executions by result",
		}, []string{"result"}),
		PluginRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "executor",
			Name:      "plugin_runs_total",
			Help:      "Plugin entry executions by result",
		}, []string{"result"}),
		MountedMods: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "runner",
			Name:      "mounted_mods",
			Help:      "Number of mounted mod instances",
		}),
		gatherer: reg,
	}
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the process-wide collectors, created on first use.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = New(nil)
	})
	return defaultMetrics
}

// Or returns m, or Default when m is nil.
func Or(m *Metrics) *Metrics {
	if m == nil {
		return Default()
	}
	return m
}

// Handler serves the collectors in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Observe records one operation outcome on a counter vector keyed by op and result.
func Observe(vec *prometheus.CounterVec, op string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	vec.WithLabelValues(op, result).Inc()
}
