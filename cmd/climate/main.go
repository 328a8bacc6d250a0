// Command climate runs the urban climate analysis pipeline for one region.
//
// Usage:
//
//	climate -config ./config -region freiburg -modules lst,veg
//	climate -config ./config -region freiburg -modules all -historical -override
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	geoserveradapter "github.com/urbanclimate/pipeline/internal/adapter/geoserver"
	httpadapter "github.com/urbanclimate/pipeline/internal/adapter/http"
	kafkaadapter "github.com/urbanclimate/pipeline/internal/adapter/kafka"
	postgisadapter "github.com/urbanclimate/pipeline/internal/adapter/postgis"
	"github.com/urbanclimate/pipeline/internal/artifact"
	"github.com/urbanclimate/pipeline/internal/cache"
	"github.com/urbanclimate/pipeline/internal/config"
	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/observability"
	"github.com/urbanclimate/pipeline/internal/pipeline"
	"github.com/urbanclimate/pipeline/internal/provider/imagery"
	"github.com/urbanclimate/pipeline/internal/provider/landcover"
	"github.com/urbanclimate/pipeline/internal/provider/weather"
)

func main() {
	var (
		configDir  = flag.String("config", "config", "configuration directory")
		regionName = flag.String("region", "", "region to analyze (required)")
		modulesArg = flag.String("modules", "all", "comma-separated modules or aliases")
		historical = flag.Bool("historical", false, "analyze back to the configured cutoff instead of the recent window")
		override   = flag.Bool("override", false, "discard cached sources and artifacts, regenerate")
		publish    = flag.Bool("publish", false, "publish finished artifacts to the map server")
		verbose    = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	if *regionName == "" {
		fmt.Fprintln(os.Stderr, "missing -region")
		flag.Usage()
		os.Exit(2)
	}

	modules, err := domain.ResolveModules(*modulesArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	regionCfg, err := config.LoadRegion(*configDir, *regionName)
	if err != nil {
		logger.Error("failed to load region config", "error", err)
		os.Exit(1)
	}

	orch, err := buildOrchestrator(cfg, regionCfg, logger, metrics)
	if err != nil {
		logger.Error("failed to assemble pipeline", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, orch, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runs, err := orch.Run(ctx, modules, pipeline.Options{
		Historical: *historical,
		Override:   *override,
		Publish:    *publish,
	})
	if err != nil {
		logger.Error("pipeline run aborted", "error", err)
	}

	failed := report(runs)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	if err != nil || failed > 0 {
		os.Exit(1)
	}
}

// buildOrchestrator wires providers and optional adapters from config.
func buildOrchestrator(cfg *config.Config, regionCfg config.RegionConfig, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Orchestrator, error) {
	params := pipeline.Params{
		Config:    cfg,
		RegionCfg: regionCfg,
		Cache:     cache.New(cfg.CacheDir, logger, metrics),
		Store:     artifact.NewStore(cfg.ArtifactDir, logger, metrics),
		LandCover: landcover.NewOverpassSource(cfg.Overpass.Endpoint, cfg.ColdAir.AllowedClasses, cfg.Overpass.Timeout, logger),
		Logger:    logger,
		Metrics:   metrics,
	}
	params.Weather.Recent = weather.NewDownloader(
		"dwd_recent", cfg.Weather.RecentURL, regionCfg.WeatherRecent, cfg.Weather.Timeout, logger)
	params.Weather.Historical = weather.NewDownloader(
		"dwd_historical", cfg.Weather.HistoricalURL, regionCfg.WeatherHistorical, cfg.Weather.Timeout, logger)

	if cfg.Imagery.Dir != "" {
		catalog, err := imagery.NewLocalCatalog(cfg.Imagery.Dir)
		if err != nil {
			return nil, err
		}
		params.Catalog = catalog
	} else {
		logger.Info("imagery catalog disabled, satellite modules will fail if requested")
	}

	if cfg.GeoServer.URL != "" {
		params.Publisher = geoserveradapter.NewClient(
			cfg.GeoServer.URL, cfg.GeoServer.Workspace,
			cfg.GeoServer.User, cfg.GeoServer.Password,
			cfg.GeoServer.Timeout, logger)
		logger.Info("geoserver publishing enabled", "workspace", cfg.GeoServer.Workspace)
	}
	if cfg.PostGIS.DSN != "" {
		importer, err := postgisadapter.NewImporter(cfg.PostGIS.DSN, cfg.PostGIS.Table, logger)
		if err != nil {
			return nil, err
		}
		params.Importer = importer
	}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		params.Notifier = kafkaadapter.NewNotifier(cfg.Notify, logger)
		logger.Info("run notifications enabled", "topic", cfg.Notify.KafkaTopic)
	}

	return pipeline.New(params)
}

// report prints the per-module outcome table and returns the failure count.
func report(runs []domain.ModuleRun) int {
	failed := 0
	for _, run := range runs {
		switch run.Status {
		case domain.StatusDone:
			suffix := ""
			if run.Cached {
				suffix = " (cached)"
			}
			fmt.Printf("%-30s done%s\n", run.Module, suffix)
		case domain.StatusFailed:
			failed++
			fmt.Printf("%-30s failed: %s\n", run.Module, run.Error)
		default:
			fmt.Printf("%-30s %s\n", run.Module, run.Status)
		}
	}
	return failed
}
