package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// heatmap service.
type Metrics struct {
	// Dataset loading.
	DatasetLoads        *prometheus.CounterVec // labels: outcome={success,error}
	DatasetLoadDuration prometheus.Histogram
	DatasetCache        *prometheus.CounterVec // labels: result={hit,miss}
	SupersededLoads     prometheus.Counter
	Invalidations       prometheus.Counter

	// Rendering.
	FramesRendered prometheus.Counter
	RenderDuration *prometheus.HistogramVec // labels: kind={frame,legend,trend}

	// Playback.
	ActiveSessions prometheus.Gauge
	PlaybackTicks  prometheus.Counter

	// Invalidation listener.
	ListenerRunning prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DatasetLoads,
		m.DatasetLoadDuration,
		m.DatasetCache,
		m.SupersededLoads,
		m.Invalidations,
		m.FramesRendered,
		m.RenderDuration,
		m.ActiveSessions,
		m.PlaybackTicks,
		m.ListenerRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DatasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "dataset_loads_total",
			Help:      "Dataset fetch+parse attempts by outcome.",
		}, []string{"outcome"}),
		DatasetLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "heatmap",
			Name:      "dataset_load_duration_seconds",
			Help:      "Duration of a complete dataset fetch, parse, and scale build.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DatasetCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "dataset_cache_total",
			Help:      "Dataset cache lookups by result.",
		}, []string{"result"}),
		SupersededLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "superseded_loads_total",
			Help:      "Dataset loads discarded because a newer selection superseded them.",
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "invalidations_total",
			Help:      "Dataset cache invalidations received from the update feed.",
		}),
		FramesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "frames_rendered_total",
			Help:      "Total heatmap frames rendered to PNG.",
		}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "heatmap",
			Name:      "render_duration_seconds",
			Help:      "PNG render duration by kind.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"kind"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatmap",
			Name:      "active_sessions",
			Help:      "Number of live playback sessions.",
		}),
		PlaybackTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "heatmap",
			Name:      "playback_ticks_total",
			Help:      "Autoplay timer ticks across all sessions.",
		}),
		ListenerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "heatmap",
			Name:      "invalidation_listener_running",
			Help:      "1 when the Kafka invalidation listener is active, 0 otherwise.",
		}),
	}
}
