package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/urbanclimate/pipeline/internal/aggregate"
	"github.com/urbanclimate/pipeline/internal/artifact"
	"github.com/urbanclimate/pipeline/internal/bandalgebra"
	"github.com/urbanclimate/pipeline/internal/dayselect"
	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/provider/elevation"
	"github.com/urbanclimate/pipeline/internal/provider/landcover"
	"github.com/urbanclimate/pipeline/internal/provider/weather"
	"github.com/urbanclimate/pipeline/internal/raster"
	"github.com/urbanclimate/pipeline/internal/topo"
)

// Artifact filenames of the single-output modules.
const (
	coldAirArtifact      = "cold_air_zones.geojson"
	coldAirSlopeArtifact = "cold_air_zones_slope.geojson"
	slopeArtifact        = "slope.grid"
	flowArtifact         = "flow_direction.grid"
	flowPointsArtifact   = "flow_direction_points.geojson"
)

// executeSatellite runs one imagery-derived module end to end: weather and
// scene retrieval, day selection, per-date derivation, and the monthly and
// yearly reductions.
func (o *Orchestrator) executeSatellite(ctx context.Context, m domain.Module, opts Options) error {
	if o.catalog == nil {
		return errors.New("imagery catalog not configured")
	}

	tr := o.timeRange(opts)
	fetcher := o.weatherRecent
	if opts.Historical {
		fetcher = o.weatherHistorical
	}

	rec, err := o.cache.Fetch(ctx, fetcher, o.region, tr, opts.Override)
	if err != nil {
		return err
	}
	observations, err := weather.ParseClimateArchive(rec.Path)
	if err != nil {
		return err
	}

	scenes, err := o.catalog.SearchScenes(ctx, o.region, tr, o.cfg.DayFilter.MaxCloudCoverage)
	if err != nil {
		return fmt.Errorf("%w: scene search: %v", domain.ErrSourceUnavailable, err)
	}

	days := dayselect.SelectDays(scenes, observations, o.thresholds(m, opts))
	if len(days) == 0 {
		// A window without eligible days is a valid outcome. The run
		// completes with whatever timesteps earlier invocations left behind.
		o.logger.Info("no eligible days",
			"module", m, "region", o.region.Name, "range", tr.Key(),
			"scenes", len(scenes), "observations", len(observations))
	} else {
		o.logger.Info("days selected",
			"module", m, "region", o.region.Name,
			"eligible", len(days), "scenes", len(scenes))
	}

	sceneByDate := leastCloudyByDate(scenes)
	for _, day := range days {
		if err := ctx.Err(); err != nil {
			return err
		}
		scene, ok := sceneByDate[day]
		if !ok {
			continue
		}
		if err := o.deriveDay(ctx, m, scene, opts); err != nil {
			return err
		}
	}

	return o.aggregateModule(m)
}

// deriveDay computes the module's indices for one scene, skipping the
// download entirely when every index artifact of that date already exists.
func (o *Orchestrator) deriveDay(ctx context.Context, m domain.Module, scene domain.SceneRecord, opts Options) error {
	specs := bandalgebra.IndicesFor(m)
	if !opts.Override && o.dayDerived(m, specs, scene.Date) {
		for range specs {
			o.metrics.DerivationsSkipped.Inc()
		}
		o.logger.Debug("derivation cached", "module", m, "date", scene.Date.String())
		return nil
	}

	bands, err := o.catalog.FetchBands(ctx, scene, requiredBands(specs))
	if err != nil {
		return fmt.Errorf("%w: bands of scene %s: %v", domain.ErrSourceUnavailable, scene.ID, err)
	}
	derived, err := o.engine.Derive(scene, bands, m)
	if err != nil {
		return err
	}

	for _, d := range derived {
		key := artifact.Key{
			Region: o.region.Name,
			Module: m,
			Bucket: artifact.BucketTimesteps,
			Name:   fmt.Sprintf("%s_%s.grid", d.Index, d.Date.String()),
		}
		if err := o.store.WriteRaster(key, d.Grid); err != nil {
			return err
		}
		o.metrics.Derivations.Inc()
	}
	return nil
}

func (o *Orchestrator) dayDerived(m domain.Module, specs []bandalgebra.IndexSpec, date domain.Date) bool {
	for _, spec := range specs {
		key := artifact.Key{
			Region: o.region.Name,
			Module: m,
			Bucket: artifact.BucketTimesteps,
			Name:   fmt.Sprintf("%s_%s.grid", spec.Name, date.String()),
		}
		if !o.store.Exists(key) {
			return false
		}
	}
	return true
}

// aggregateModule reloads every timestep raster of the module and writes
// the monthly and yearly means. Aggregates are always recomputed from the
// timesteps on disk, so reruns that added dates refresh them.
func (o *Orchestrator) aggregateModule(m domain.Module) error {
	rasters, err := o.loadTimesteps(m)
	if err != nil {
		return err
	}
	if len(rasters) == 0 {
		o.logger.Debug("no timesteps to aggregate", "module", m)
		return nil
	}

	for _, kind := range []domain.PeriodKind{domain.PeriodMonthly, domain.PeriodYearly} {
		aggs, err := aggregate.Aggregate(rasters, kind)
		if err != nil {
			return err
		}
		bucket := artifact.BucketMonthly
		if kind == domain.PeriodYearly {
			bucket = artifact.BucketYearly
		}
		for _, agg := range aggs {
			key := artifact.Key{
				Region: o.region.Name,
				Module: m,
				Bucket: bucket,
				Name:   fmt.Sprintf("%s_%s.grid", agg.Index, agg.Key),
			}
			if err := o.store.WriteRaster(key, agg.Grid); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadTimesteps reads back every per-date raster of the module. Artifact
// names follow "<index>_<date>.grid".
func (o *Orchestrator) loadTimesteps(m domain.Module) ([]domain.DerivedRaster, error) {
	names, err := o.store.List(o.region.Name, m, artifact.BucketTimesteps)
	if err != nil {
		return nil, err
	}
	rasters := make([]domain.DerivedRaster, 0, len(names))
	for _, name := range names {
		index, date, ok := parseTimestepName(name)
		if !ok {
			o.logger.Warn("unrecognized timestep artifact, skipping", "name", name)
			continue
		}
		grid, err := o.store.ReadRaster(artifact.Key{
			Region: o.region.Name, Module: m, Bucket: artifact.BucketTimesteps, Name: name,
		})
		if err != nil {
			return nil, err
		}
		rasters = append(rasters, domain.DerivedRaster{Module: m, Index: index, Date: date, Grid: grid})
	}
	return rasters, nil
}

// executeColdAir derives the unconstrained cold-air zone from the cached
// land-cover payload.
func (o *Orchestrator) executeColdAir(ctx context.Context, opts Options) error {
	zone, dropped, err := o.coldAirZone(ctx, nil, opts)
	if err != nil {
		return err
	}
	o.metrics.FeaturesDropped.Add(float64(dropped))

	key := artifact.Key{Region: o.region.Name, Module: domain.ModuleColdAirZones, Name: coldAirArtifact}
	return o.store.WriteVector(key, zoneFeatureCollection(zone))
}

// executeColdAirWithSlope restricts the zone to terrain at or below the
// configured slope threshold, reading the slope raster produced by the
// dependency run.
func (o *Orchestrator) executeColdAirWithSlope(ctx context.Context, opts Options) error {
	slopeGrid, err := o.store.ReadRaster(artifact.Key{
		Region: o.region.Name, Module: domain.ModuleSlope, Name: slopeArtifact,
	})
	if err != nil {
		return fmt.Errorf("%w: slope raster: %v", domain.ErrDependencyFailed, err)
	}

	zone, dropped, err := o.coldAirZone(ctx, slopeGrid, opts)
	if err != nil {
		return err
	}
	o.metrics.FeaturesDropped.Add(float64(dropped))

	key := artifact.Key{Region: o.region.Name, Module: domain.ModuleColdAirZonesWithSlope, Name: coldAirSlopeArtifact}
	return o.store.WriteVector(key, zoneFeatureCollection(zone))
}

func (o *Orchestrator) coldAirZone(ctx context.Context, slopeGrid *raster.Grid, opts Options) (topo.ColdAirZone, int, error) {
	rec, err := o.cache.Fetch(ctx, o.landcover, o.region, o.timeRange(opts), opts.Override)
	if err != nil {
		return topo.ColdAirZone{}, 0, err
	}
	features, err := landcover.LoadFeatures(rec.Path)
	if err != nil {
		return topo.ColdAirZone{}, 0, err
	}

	return topo.ColdAirZones(
		o.region.Name, features, o.cfg.ColdAir.AllowedClasses,
		slopeGrid, o.cfg.ColdAir.SlopeThresholdDeg, o.logger)
}

// executeSlope derives the slope raster from the elevation model.
func (o *Orchestrator) executeSlope(_ context.Context) error {
	dem, err := elevation.LoadDEMs(o.regionCfg.DEMDirs)
	if err != nil {
		return err
	}
	key := artifact.Key{Region: o.region.Name, Module: domain.ModuleSlope, Name: slopeArtifact}
	return o.store.WriteRaster(key, topo.Slope(dem))
}

// executeFlowDirection derives the D8 flow raster plus the aggregated
// direction points used for map arrows.
func (o *Orchestrator) executeFlowDirection(_ context.Context) error {
	dem, err := elevation.LoadDEMs(o.regionCfg.DEMDirs)
	if err != nil {
		return err
	}
	fdir := topo.FlowDirection(dem)

	key := artifact.Key{Region: o.region.Name, Module: domain.ModuleAirFlowDirection, Name: flowArtifact}
	if err := o.store.WriteRaster(key, fdir); err != nil {
		return err
	}

	points := topo.AggregateDirections(fdir, o.cfg.Resolution.FlowAggregation)
	pointsKey := artifact.Key{Region: o.region.Name, Module: domain.ModuleAirFlowDirection, Name: flowPointsArtifact}
	return o.store.WriteVector(pointsKey, directionFeatureCollection(points))
}

// thresholds builds the day-selection criteria of one satellite module.
// The thermal module keeps only hot days; the vegetation module filters on
// cloud cover alone.
func (o *Orchestrator) thresholds(m domain.Module, opts Options) dayselect.Thresholds {
	df := o.cfg.DayFilter
	t := dayselect.Thresholds{
		MaxCloudCoverage: df.MaxCloudCoverage,
		Historical:       opts.Historical,
		RecentWindowDays: df.RecentWindowDays,
	}
	if df.HistoricalCutoff != "" {
		t.HistoricalCutoff, _ = domain.ParseDate(df.HistoricalCutoff)
	}
	switch m {
	case domain.ModuleLandSurfaceTemperature:
		t.MinTemperature = df.MinTemperature
	case domain.ModuleVegetationIndices:
		t.MaxWindSpeed = df.MaxWindSpeed
	}
	return t
}

// timeRange computes the cache key range of one invocation: cutoff to
// today for historical runs, the recent window otherwise.
func (o *Orchestrator) timeRange(opts Options) domain.TimeRange {
	today := domain.DateOf(domain.Clock.Now())
	if opts.Historical && o.cfg.DayFilter.HistoricalCutoff != "" {
		cutoff, _ := domain.ParseDate(o.cfg.DayFilter.HistoricalCutoff)
		return domain.TimeRange{Start: cutoff, End: today}
	}
	start := domain.DateOf(domain.Clock.Now().AddDate(0, 0, -o.cfg.DayFilter.RecentWindowDays))
	return domain.TimeRange{Start: start, End: today}
}

// leastCloudyByDate keeps the clearest scene per acquisition date.
func leastCloudyByDate(scenes []domain.SceneRecord) map[domain.Date]domain.SceneRecord {
	byDate := make(map[domain.Date]domain.SceneRecord, len(scenes))
	for _, s := range scenes {
		if prev, ok := byDate[s.Date]; !ok || s.CloudCoverage < prev.CloudCoverage {
			byDate[s.Date] = s
		}
	}
	return byDate
}

func requiredBands(specs []bandalgebra.IndexSpec) []string {
	set := make(map[string]bool)
	for _, spec := range specs {
		for _, b := range spec.Bands {
			set[b] = true
		}
	}
	bands := make([]string, 0, len(set))
	for b := range set {
		bands = append(bands, b)
	}
	sort.Strings(bands)
	return bands
}

func parseTimestepName(name string) (index string, date domain.Date, ok bool) {
	base := strings.TrimSuffix(name, ".grid")
	if base == name {
		return "", domain.Date{}, false
	}
	i := strings.LastIndex(base, "_")
	if i <= 0 {
		return "", domain.Date{}, false
	}
	d, err := domain.ParseDate(base[i+1:])
	if err != nil {
		return "", domain.Date{}, false
	}
	return base[:i], d, true
}

func zoneFeatureCollection(zone topo.ColdAirZone) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(zone.Geometry)
	f.Properties["region"] = zone.Region
	f.Properties["classes"] = strings.Join(zone.Classes, ",")
	f.Properties["slope_constrained"] = zone.SlopeConstrained
	fc.Append(f)
	return fc
}

func directionFeatureCollection(points []topo.DirectionPoint) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, p := range points {
		f := geojson.NewFeature(orb.Point{p.X, p.Y})
		f.Properties["direction"] = p.Direction
		fc.Append(f)
	}
	return fc
}

func isVectorArtifact(key artifact.Key) bool {
	return strings.HasSuffix(key.Name, ".geojson")
}
