// Package metrics implements the observability hooks with Prometheus
// collectors on a private registry.
//
// The CLI has no long-running server, so metrics are written once at exit
// in the node-exporter textfile format with [Metrics.WriteTextfile].
package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/gitpkg/pkg/buildinfo"
	"github.com/matzehuels/gitpkg/pkg/observability"
)

// Metrics collects resolver, cache and git events.
type Metrics struct {
	registry *prometheus.Registry

	resolveTotal    *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	resolvedNodes   prometheus.Gauge
	levelKeys       *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheBytes  *prometheus.CounterVec

	gitCommands *prometheus.CounterVec
	gitErrors   *prometheus.CounterVec
	gitDuration *prometheus.HistogramVec
	gitRetries  *prometheus.CounterVec
}

var (
	_ observability.ResolveHooks = (*Metrics)(nil)
	_ observability.CacheHooks   = (*Metrics)(nil)
	_ observability.GitHooks     = (*Metrics)(nil)
)

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolveTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitpkg_resolve_total",
				Help: "Number of resolution runs by outcome.",
			},
			[]string{"outcome"},
		),
		resolveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gitpkg_resolve_duration_seconds",
				Help:    "Time taken to resolve a manifest.",
				Buckets: prometheus.DefBuckets,
			},
		),
		resolvedNodes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gitpkg_resolve_nodes",
				Help: "Number of nodes in the last resolved graph.",
			},
		),
		levelKeys: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitpkg_resolve_keys_total",
				Help: "Distinct (source, constraint) keys resolved, by fixed-point level.",
			},
			[]string{"level"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitpkg_cache_hits_total",
				Help: "Cache hits by key type.",
			},
			[]string{"type"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitpkg_cache_misses_total",
				Help: "Cache misses by key type.",
			},
			[]string{"type"},
		),
		cacheBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitpkg_cache_set_bytes_total",
				Help: "Bytes written to caches by key type.",
			},
			[]string{"type"},
		),
		gitCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitpkg_git_commands_total",
				Help: "Git commands run, by operation.",
			},
			[]string{"op"},
		),
		gitErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitpkg_git_errors_total",
				Help: "Failed git commands, by operation.",
			},
			[]string{"op"},
		),
		gitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gitpkg_git_duration_seconds",
				Help:    "Git command latency, by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		gitRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gitpkg_git_retries_total",
				Help: "Transient git failures retried, by operation.",
			},
			[]string{"op"},
		),
	}
	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "gitpkg_build_info",
		Help:        "Build information of the running binary; always 1.",
		ConstLabels: buildinfo.Labels(),
	})
	buildInfo.Set(1)

	m.registry.MustRegister(
		buildInfo,
		m.resolveTotal,
		m.resolveDuration,
		m.resolvedNodes,
		m.levelKeys,
		m.cacheHits,
		m.cacheMisses,
		m.cacheBytes,
		m.gitCommands,
		m.gitErrors,
		m.gitDuration,
		m.gitRetries,
	)
	return m
}

// Register installs m as the process-wide hooks.
func (m *Metrics) Register() {
	observability.SetResolveHooks(m)
	observability.SetCacheHooks(m)
	observability.SetGitHooks(m)
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes all metrics to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) OnResolveStart(context.Context, int) {}

func (m *Metrics) OnLevel(_ context.Context, level, keys int) {
	m.levelKeys.WithLabelValues(strconv.Itoa(level)).Add(float64(keys))
}

func (m *Metrics) OnResolveComplete(_ context.Context, nodes int, d time.Duration, err error) {
	m.resolveTotal.WithLabelValues(outcome(err)).Inc()
	m.resolveDuration.Observe(d.Seconds())
	if err == nil {
		m.resolvedNodes.Set(float64(nodes))
	}
}

func (m *Metrics) OnCacheHit(_ context.Context, keyType string) {
	m.cacheHits.WithLabelValues(keyType).Inc()
}

func (m *Metrics) OnCacheMiss(_ context.Context, keyType string) {
	m.cacheMisses.WithLabelValues(keyType).Inc()
}

func (m *Metrics) OnCacheSet(_ context.Context, keyType string, size int) {
	m.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (m *Metrics) OnCommand(_ context.Context, op, _ string) {
	m.gitCommands.WithLabelValues(op).Inc()
}

func (m *Metrics) OnCommandComplete(_ context.Context, op, _ string, d time.Duration, err error) {
	m.gitDuration.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.gitErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) OnRetry(_ context.Context, op, _ string, _ error) {
	m.gitRetries.WithLabelValues(op).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
