// Package config loads pipeline configuration. Operational settings come
// from environment variables, analysis settings from YAML files: one
// pipeline file with thresholds and endpoints, and one file per region
// describing its extent and data sources.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/urbanclimate/pipeline/internal/domain"
)

// Config holds all pipeline settings.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	CacheDir    string `yaml:"cache_dir"`
	ArtifactDir string `yaml:"artifact_dir"`

	Weather    WeatherConfig    `yaml:"weather"`
	Imagery    ImageryConfig    `yaml:"imagery"`
	Overpass   OverpassConfig   `yaml:"overpass"`
	DayFilter  DayFilterConfig  `yaml:"day_filter"`
	ColdAir    ColdAirConfig    `yaml:"cold_air"`
	GeoServer  GeoServerConfig  `yaml:"geoserver"`
	Notify     NotifyConfig     `yaml:"notify"`
	PostGIS    PostGISConfig    `yaml:"postgis"`
	Resolution ResolutionConfig `yaml:"resolution"`
}

// WeatherConfig points at the DWD open-data climate archives.
type WeatherConfig struct {
	RecentURL     string        `yaml:"recent_url"`
	HistoricalURL string        `yaml:"historical_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

// ImageryConfig configures the satellite scene catalog. Dir selects the
// local scene library; the endpoint fields are reserved for a hosted
// catalog client.
type ImageryConfig struct {
	Dir          string        `yaml:"dir"`
	Endpoint     string        `yaml:"endpoint"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
}

// OverpassConfig configures the OSM land-cover source.
type OverpassConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DayFilterConfig holds the observation-day eligibility thresholds.
type DayFilterConfig struct {
	MaxCloudCoverage float64  `yaml:"max_cloud_coverage"`
	MaxWindSpeed     *float64 `yaml:"max_windspeed"`
	MinTemperature   *float64 `yaml:"min_temperature"`
	HistoricalCutoff string   `yaml:"historical_cutoff"`
	RecentWindowDays int      `yaml:"recent_window_days"`
}

// ColdAirConfig holds the cold-air zone derivation settings.
type ColdAirConfig struct {
	AllowedClasses    []string `yaml:"allowed_classes"`
	SlopeThresholdDeg float64  `yaml:"slope_threshold_deg"`
}

// GeoServerConfig configures layer publishing. Publishing is disabled
// when the URL is empty.
type GeoServerConfig struct {
	URL       string        `yaml:"url"`
	Workspace string        `yaml:"workspace"`
	User      string        `yaml:"user"`
	Password  string        `yaml:"password"`
	Timeout   time.Duration `yaml:"timeout"`
}

// NotifyConfig configures run-event notifications. Disabled when no
// brokers are set.
type NotifyConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
}

// PostGISConfig configures the vector importer. Disabled when the DSN
// is empty.
type PostGISConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// ResolutionConfig holds output grid resolutions in map units.
type ResolutionConfig struct {
	FlowAggregation float64 `yaml:"flow_aggregation"`
}

// RegionConfig describes one analysis region.
type RegionConfig struct {
	Name         string   `yaml:"name"`
	BBox         []float64 `yaml:"bbox"` // min_lon, min_lat, max_lon, max_lat
	BufferMeters float64  `yaml:"buffer_meters"`

	// Station archive filenames inside the DWD recent and historical
	// directories.
	WeatherRecent     string `yaml:"weather_recent"`
	WeatherHistorical string `yaml:"weather_historical"`

	DEMDirs []string `yaml:"dem_dirs"`
}

// Region converts the raw YAML fields into the domain region.
func (rc RegionConfig) Region() (domain.Region, error) {
	if len(rc.BBox) != 4 {
		return domain.Region{}, fmt.Errorf("region %s: bbox needs 4 values, got %d", rc.Name, len(rc.BBox))
	}
	r := domain.Region{
		Name: rc.Name,
		BBox: domain.BBox{
			MinLon: rc.BBox[0],
			MinLat: rc.BBox[1],
			MaxLon: rc.BBox[2],
			MaxLat: rc.BBox[3],
		},
		BufferMeters: rc.BufferMeters,
	}
	if err := r.Validate(); err != nil {
		return domain.Region{}, err
	}
	return r, nil
}

// Load reads the pipeline file from dir and applies environment
// overrides and defaults.
func Load(dir string) (*Config, error) {
	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: 10 * time.Second,
	}
	if s := os.Getenv("SHUTDOWN_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, errors.New("invalid SHUTDOWN_TIMEOUT")
		}
		cfg.ShutdownTimeout = d
	}

	data, err := os.ReadFile(filepath.Join(dir, "pipeline.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read pipeline config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse pipeline config: %w", err)
	}
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRegion reads the region file <dir>/regions/<name>.yaml.
func LoadRegion(dir, name string) (RegionConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, "regions", name+".yaml"))
	if err != nil {
		return RegionConfig{}, fmt.Errorf("read region config %s: %w", name, err)
	}
	var rc RegionConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return RegionConfig{}, fmt.Errorf("parse region config %s: %w", name, err)
	}
	if rc.Name == "" {
		rc.Name = name
	}
	if _, err := rc.Region(); err != nil {
		return RegionConfig{}, err
	}
	return rc, nil
}

func applyDefaults(cfg *Config) {
	if cfg.CacheDir == "" {
		cfg.CacheDir = "data/cache"
	}
	if cfg.ArtifactDir == "" {
		cfg.ArtifactDir = "data/artifacts"
	}
	if cfg.Weather.RecentURL == "" {
		cfg.Weather.RecentURL = "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/recent/"
	}
	if cfg.Weather.HistoricalURL == "" {
		cfg.Weather.HistoricalURL = "https://opendata.dwd.de/climate_environment/CDC/observations_germany/climate/daily/kl/historical/"
	}
	if cfg.Weather.Timeout <= 0 {
		cfg.Weather.Timeout = 60 * time.Second
	}
	if cfg.Overpass.Endpoint == "" {
		cfg.Overpass.Endpoint = "https://overpass-api.de/api/interpreter"
	}
	if cfg.Overpass.Timeout <= 0 {
		cfg.Overpass.Timeout = 90 * time.Second
	}
	if cfg.Imagery.Timeout <= 0 {
		cfg.Imagery.Timeout = 60 * time.Second
	}
	if cfg.DayFilter.MaxCloudCoverage == 0 {
		cfg.DayFilter.MaxCloudCoverage = 25.0
	}
	if cfg.DayFilter.RecentWindowDays == 0 {
		cfg.DayFilter.RecentWindowDays = 500
	}
	if len(cfg.ColdAir.AllowedClasses) == 0 {
		cfg.ColdAir.AllowedClasses = []string{"grass", "farmland", "meadow"}
	}
	if cfg.ColdAir.SlopeThresholdDeg == 0 {
		cfg.ColdAir.SlopeThresholdDeg = 2.0
	}
	if cfg.GeoServer.Timeout <= 0 {
		cfg.GeoServer.Timeout = 30 * time.Second
	}
	if cfg.Notify.KafkaTopic == "" {
		cfg.Notify.KafkaTopic = "pipeline-run-events"
	}
	if cfg.PostGIS.Table == "" {
		cfg.PostGIS.Table = "cold_air_zones"
	}
	if cfg.Resolution.FlowAggregation == 0 {
		cfg.Resolution.FlowAggregation = 100.0
	}
}

func validate(cfg *Config) error {
	if cfg.DayFilter.MaxCloudCoverage < 0 || cfg.DayFilter.MaxCloudCoverage > 100 {
		return errors.New("day_filter.max_cloud_coverage must be within [0, 100]")
	}
	if cfg.DayFilter.MaxWindSpeed != nil && *cfg.DayFilter.MaxWindSpeed < 0 {
		return errors.New("day_filter.max_windspeed must not be negative")
	}
	if cfg.DayFilter.HistoricalCutoff != "" {
		if _, err := domain.ParseDate(cfg.DayFilter.HistoricalCutoff); err != nil {
			return fmt.Errorf("day_filter.historical_cutoff: %w", err)
		}
	}
	if cfg.DayFilter.RecentWindowDays <= 0 {
		return errors.New("day_filter.recent_window_days must be positive")
	}
	if cfg.ColdAir.SlopeThresholdDeg <= 0 {
		return errors.New("cold_air.slope_threshold_deg must be positive")
	}
	if cfg.GeoServer.URL != "" && cfg.GeoServer.Workspace == "" {
		return errors.New("geoserver.workspace is required when geoserver.url is set")
	}
	if len(cfg.Notify.KafkaBrokers) == 1 && strings.Contains(cfg.Notify.KafkaBrokers[0], ",") {
		cfg.Notify.KafkaBrokers = strings.Split(cfg.Notify.KafkaBrokers[0], ",")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", cfg.LogLevel)
	}
	if cfg.Resolution.FlowAggregation <= 0 {
		return errors.New("resolution.flow_aggregation must be positive")
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
