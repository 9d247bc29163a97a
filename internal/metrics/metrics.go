// Package metrics exposes the engine's health counters through a private
// Prometheus registry. The render thread increments plain counters, which are
// atomic adds with no allocation; everything heavier lives on the control
// plane behind the /metrics handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the engine's collectors. The engine creates its own set
// when the caller does not supply one, so recording sites never nil-check.
type Metrics struct {
	registry *prometheus.Registry

	BlocksRendered   prometheus.Counter
	RenderSeconds    prometheus.Histogram
	DeadlineOverruns prometheus.Counter
	CommitsApplied   prometheus.Counter
	CommitsRejected  prometheus.Counter
	ModulesBypassed  prometheus.Counter
	CablesDropped    prometheus.Counter
	GraceTimeouts    prometheus.Counter
	MIDIDropped      prometheus.Counter
	ActiveModules    prometheus.Gauge
	SnapshotRev      prometheus.Gauge
}

// New builds the collector set on a fresh private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		BlocksRendered: factory.NewCounter(prometheus.CounterOpts{
			Name: "collider_blocks_rendered_total",
			Help: "Audio blocks rendered since start.",
		}),
		RenderSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "collider_block_render_seconds",
			Help:    "Wall time spent rendering one block.",
			Buckets: prometheus.ExponentialBuckets(10e-6, 2, 12),
		}),
		DeadlineOverruns: factory.NewCounter(prometheus.CounterOpts{
			Name: "collider_deadline_overruns_total",
			Help: "Blocks whose render time exceeded one block period.",
		}),
		CommitsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "collider_commits_applied_total",
			Help: "Topology commits published.",
		}),
		CommitsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "collider_commits_rejected_total",
			Help: "Topology edit batches rejected with a structural error.",
		}),
		ModulesBypassed: factory.NewCounter(prometheus.CounterOpts{
			Name: "collider_modules_bypassed_total",
			Help: "Modules bypassed because Prepare failed during a commit.",
		}),
		CablesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "collider_cables_dropped_total",
			Help: "Cables dropped because a pin disappeared after a layout change.",
		}),
		GraceTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "collider_grace_timeouts_total",
			Help: "Commits that destroyed modules before the renderer confirmed the new snapshot.",
		}),
		MIDIDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "collider_midi_dropped_total",
			Help: "MIDI messages dropped because a block's buffer was full.",
		}),
		ActiveModules: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collider_active_modules",
			Help: "Modules in the published snapshot.",
		}),
		SnapshotRev: factory.NewGauge(prometheus.GaugeOpts{
			Name: "collider_snapshot_revision",
			Help: "Revision of the published snapshot.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
