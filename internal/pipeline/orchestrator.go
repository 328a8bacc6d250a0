// Package pipeline orchestrates module runs for a region. Each requested
// module becomes one run walking pending, running, and a terminal done or
// failed state. Dependencies execute first; a failed dependency fails its
// dependents without touching the remaining independent modules, so a
// partially successful invocation is a valid outcome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/urbanclimate/pipeline/internal/artifact"
	"github.com/urbanclimate/pipeline/internal/bandalgebra"
	"github.com/urbanclimate/pipeline/internal/cache"
	"github.com/urbanclimate/pipeline/internal/config"
	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/observability"
	"github.com/urbanclimate/pipeline/internal/provider/imagery"
)

// Publisher pushes a committed artifact to the map server.
type Publisher interface {
	PublishArtifact(ctx context.Context, key artifact.Key, path string) error
}

// Importer loads a vector artifact into the spatial database.
type Importer interface {
	ImportFeatures(ctx context.Context, key artifact.Key, fc *geojson.FeatureCollection) error
}

// Notifier announces finished runs to downstream consumers.
type Notifier interface {
	NotifyRuns(ctx context.Context, runs []domain.ModuleRun) error
}

// Options are the per-invocation flags.
type Options struct {
	// Historical widens the eligible date range back to the configured
	// cutoff instead of the recent window.
	Historical bool
	// Override discards cached sources and artifacts for the requested
	// modules and regenerates them.
	Override bool
	// Publish pushes the finished artifacts of successful modules.
	Publish bool
}

// Orchestrator executes module runs for one region.
type Orchestrator struct {
	cfg       *config.Config
	regionCfg config.RegionConfig
	region    domain.Region

	cache   *cache.Cache
	store   *artifact.Store
	catalog imagery.Catalog
	engine  *bandalgebra.Engine

	weatherRecent     cache.Fetcher
	weatherHistorical cache.Fetcher
	landcover         cache.Fetcher

	publisher Publisher
	importer  Importer
	notifier  Notifier

	logger  *slog.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	runs []domain.ModuleRun
}

// Params wires the orchestrator. Publisher, Importer and Notifier are
// optional; Catalog is required only when a satellite module runs.
type Params struct {
	Config    *config.Config
	RegionCfg config.RegionConfig
	Cache     *cache.Cache
	Store     *artifact.Store
	Catalog   imagery.Catalog
	Weather   struct {
		Recent     cache.Fetcher
		Historical cache.Fetcher
	}
	LandCover cache.Fetcher
	Publisher Publisher
	Importer  Importer
	Notifier  Notifier
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// New creates an orchestrator for the configured region.
func New(p Params) (*Orchestrator, error) {
	region, err := p.RegionCfg.Region()
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		cfg:               p.Config,
		regionCfg:         p.RegionCfg,
		region:            region,
		cache:             p.Cache,
		store:             p.Store,
		catalog:           p.Catalog,
		engine:            bandalgebra.NewEngine(p.Logger),
		weatherRecent:     p.Weather.Recent,
		weatherHistorical: p.Weather.Historical,
		landcover:         p.LandCover,
		publisher:         p.Publisher,
		importer:          p.Importer,
		notifier:          p.Notifier,
		logger:            p.Logger,
		metrics:           p.Metrics,
	}, nil
}

// Runs returns a snapshot of the runs of the current or last invocation.
func (o *Orchestrator) Runs() []domain.ModuleRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]domain.ModuleRun, len(o.runs))
	copy(out, o.runs)
	return out
}

// Run executes the requested modules plus their dependencies in dependency
// order and returns every run in execution order. Module failures are
// recorded on the runs, not returned; the error covers invocation-level
// problems only.
func (o *Orchestrator) Run(ctx context.Context, modules []domain.Module, opts Options) ([]domain.ModuleRun, error) {
	order := executionOrder(modules)
	o.logger.Info("pipeline run starting",
		"region", o.region.Name, "modules", moduleNames(order),
		"historical", opts.Historical, "override", opts.Override)

	o.metrics.PipelineRunning.Set(1)
	defer o.metrics.PipelineRunning.Set(0)

	o.mu.Lock()
	o.runs = nil
	o.mu.Unlock()

	results := make(map[domain.Module]*domain.ModuleRun, len(order))
	runs := make([]*domain.ModuleRun, 0, len(order))

	for _, m := range order {
		run := domain.NewModuleRun(o.region, m)
		results[m] = run
		runs = append(runs, run)
		o.recordRun(run)

		if err := ctx.Err(); err != nil {
			run.Fail(err)
			o.finishRun(run)
			continue
		}
		if dep, failed := failedDependency(m, results); failed {
			run.Fail(fmt.Errorf("%w: %s did not complete", domain.ErrDependencyFailed, dep))
			o.finishRun(run)
			continue
		}

		run.Start()
		o.recordRun(run)

		if !opts.Override && o.moduleComplete(m) {
			o.logger.Info("module artifacts cached, skipping", "module", m, "region", o.region.Name)
			run.Finish(true)
			o.finishRun(run)
			continue
		}
		if opts.Override {
			if err := o.store.RemoveModule(o.region.Name, m); err != nil {
				run.Fail(err)
				o.finishRun(run)
				continue
			}
		}

		if err := o.execute(ctx, m, opts); err != nil {
			o.logger.Error("module run failed", "module", m, "region", o.region.Name, "error", err)
			run.Fail(err)
		} else {
			run.Finish(false)
		}
		o.finishRun(run)
	}

	out := make([]domain.ModuleRun, len(runs))
	for i, r := range runs {
		out[i] = *r
	}

	if opts.Publish && o.publisher != nil {
		o.publishResults(ctx, out)
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyRuns(ctx, out); err != nil {
			o.logger.Warn("run notification failed", "error", err)
		}
	}
	return out, nil
}

func (o *Orchestrator) execute(ctx context.Context, m domain.Module, opts Options) error {
	start := time.Now()
	var err error
	switch m {
	case domain.ModuleLandSurfaceTemperature, domain.ModuleVegetationIndices:
		err = o.executeSatellite(ctx, m, opts)
	case domain.ModuleColdAirZones:
		err = o.executeColdAir(ctx, opts)
	case domain.ModuleSlope:
		err = o.executeSlope(ctx)
	case domain.ModuleColdAirZonesWithSlope:
		err = o.executeColdAirWithSlope(ctx, opts)
	case domain.ModuleAirFlowDirection:
		err = o.executeFlowDirection(ctx)
	default:
		err = fmt.Errorf("unknown module %s", m)
	}

	status := "done"
	if err != nil {
		status = "failed"
	}
	o.metrics.ModuleRuns.WithLabelValues(string(m), status).Inc()
	o.metrics.ModuleRunDuration.WithLabelValues(string(m)).Observe(time.Since(start).Seconds())
	return err
}

// executionOrder expands the request to include dependencies, placing each
// dependency before its dependents and deduplicating.
func executionOrder(modules []domain.Module) []domain.Module {
	var order []domain.Module
	seen := make(map[domain.Module]bool)
	var visit func(m domain.Module)
	visit = func(m domain.Module) {
		if seen[m] {
			return
		}
		seen[m] = true
		for _, dep := range m.Dependencies() {
			visit(dep)
		}
		order = append(order, m)
	}
	for _, m := range modules {
		visit(m)
	}
	return order
}

func failedDependency(m domain.Module, results map[domain.Module]*domain.ModuleRun) (domain.Module, bool) {
	for _, dep := range m.Dependencies() {
		if run, ok := results[dep]; ok && run.Status == domain.StatusFailed {
			return dep, true
		}
	}
	return "", false
}

// moduleComplete reports whether the module's final artifacts already
// exist, which lets a repeated invocation finish without recomputation.
func (o *Orchestrator) moduleComplete(m domain.Module) bool {
	switch m {
	case domain.ModuleLandSurfaceTemperature, domain.ModuleVegetationIndices:
		monthly, err := o.store.List(o.region.Name, m, artifact.BucketMonthly)
		if err != nil || len(monthly) == 0 {
			return false
		}
		yearly, err := o.store.List(o.region.Name, m, artifact.BucketYearly)
		return err == nil && len(yearly) > 0
	case domain.ModuleColdAirZones:
		return o.store.Exists(artifact.Key{Region: o.region.Name, Module: m, Name: coldAirArtifact})
	case domain.ModuleColdAirZonesWithSlope:
		return o.store.Exists(artifact.Key{Region: o.region.Name, Module: m, Name: coldAirSlopeArtifact})
	case domain.ModuleSlope:
		return o.store.Exists(artifact.Key{Region: o.region.Name, Module: m, Name: slopeArtifact})
	case domain.ModuleAirFlowDirection:
		return o.store.Exists(artifact.Key{Region: o.region.Name, Module: m, Name: flowArtifact})
	}
	return false
}

// publishResults pushes every final artifact of the successful runs, and
// imports the vector ones when an importer is wired. Publish failures are
// logged per artifact and never fail the run retroactively.
func (o *Orchestrator) publishResults(ctx context.Context, runs []domain.ModuleRun) {
	for _, run := range runs {
		if run.Status != domain.StatusDone {
			continue
		}
		for _, bucket := range []string{"", artifact.BucketMonthly, artifact.BucketYearly} {
			names, err := o.store.List(run.Region, run.Module, bucket)
			if err != nil {
				o.logger.Warn("artifact listing failed", "module", run.Module, "bucket", bucket, "error", err)
				continue
			}
			for _, name := range names {
				key := artifact.Key{Region: run.Region, Module: run.Module, Bucket: bucket, Name: name}
				o.publishArtifact(ctx, key)
			}
		}
	}
}

func (o *Orchestrator) publishArtifact(ctx context.Context, key artifact.Key) {
	if err := o.publisher.PublishArtifact(ctx, key, o.store.Path(key)); err != nil {
		o.logger.Warn("artifact publish failed", "key", key.String(), "error", err)
	}
	if o.importer == nil || !isVectorArtifact(key) {
		return
	}
	fc, err := o.store.ReadVector(key)
	if err != nil {
		o.logger.Warn("vector artifact read failed", "key", key.String(), "error", err)
		return
	}
	if err := o.importer.ImportFeatures(ctx, key, fc); err != nil {
		o.logger.Warn("vector import failed", "key", key.String(), "error", err)
	}
}

func (o *Orchestrator) recordRun(run *domain.ModuleRun) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.runs {
		if o.runs[i].ID == run.ID {
			o.runs[i] = *run
			return
		}
	}
	o.runs = append(o.runs, *run)
}

func (o *Orchestrator) finishRun(run *domain.ModuleRun) {
	o.recordRun(run)
	o.logger.Info("module run finished",
		"module", run.Module, "region", run.Region,
		"status", run.Status, "cached", run.Cached)
}

func moduleNames(mods []domain.Module) []string {
	names := make([]string, len(mods))
	for i, m := range mods {
		names[i] = string(m)
	}
	return names
}
