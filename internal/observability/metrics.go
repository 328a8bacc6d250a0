package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// analysis pipeline.
type Metrics struct {
	ProviderFetches *prometheus.CounterVec // labels: provider, outcome={success,error}
	CacheLookups    *prometheus.CounterVec // labels: provider, result={hit,miss}

	Derivations        prometheus.Counter
	DerivationsSkipped prometheus.Counter

	ModuleRuns        *prometheus.CounterVec   // labels: module, status={done,failed}
	ModuleRunDuration *prometheus.HistogramVec // labels: module

	FeaturesDropped  prometheus.Counter
	ArtifactsWritten *prometheus.CounterVec // labels: kind={raster,vector}

	PipelineRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ProviderFetches,
		m.CacheLookups,
		m.Derivations,
		m.DerivationsSkipped,
		m.ModuleRuns,
		m.ModuleRunDuration,
		m.FeaturesDropped,
		m.ArtifactsWritten,
		m.PipelineRunning,
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
		ProviderFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_pipeline",
			Name:      "provider_fetches_total",
			Help:      "Raw data fetches by provider and outcome.",
		}, []string{"provider", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_pipeline",
			Name:      "source_cache_lookups_total",
			Help:      "Source cache lookups by provider and result.",
		}, []string{"provider", "result"}),
		Derivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_pipeline",
			Name:      "derivations_total",
			Help:      "Per-date raster derivations performed.",
		}),
		DerivationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_pipeline",
			Name:      "derivations_skipped_total",
			Help:      "Derivations skipped because a cached artifact existed.",
		}),
		ModuleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_pipeline",
			Name:      "module_runs_total",
			Help:      "Module runs by module and terminal status.",
		}, []string{"module", "status"}),
		ModuleRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climate_pipeline",
			Name:      "module_run_duration_seconds",
			Help:      "Wall-clock duration of one module run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"module"}),
		FeaturesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climate_pipeline",
			Name:      "features_dropped_total",
			Help:      "Vector features dropped after failed geometry repair.",
		}),
		ArtifactsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_pipeline",
			Name:      "artifacts_written_total",
			Help:      "Artifacts committed to the store by kind.",
		}, []string{"kind"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climate_pipeline",
			Name:      "pipeline_running",
			Help:      "1 while a region run is active, 0 otherwise.",
		}),
	}
}
