package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanclimate/pipeline/internal/config"
)

func writePipelineYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.yaml"), []byte(body), 0o644))
	return dir
}

func writeRegionYAML(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "regions"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regions", name+".yaml"), []byte(body), 0o644))
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := writePipelineYAML(t, "cache_dir: /var/cache/pipeline\n")

	cfg, err := config.Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "/var/cache/pipeline", cfg.CacheDir)
	assert.Equal(t, "data/artifacts", cfg.ArtifactDir)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Contains(t, cfg.Weather.RecentURL, "opendata.dwd.de")
	assert.Equal(t, 25.0, cfg.DayFilter.MaxCloudCoverage)
	assert.Equal(t, 500, cfg.DayFilter.RecentWindowDays)
	assert.Equal(t, []string{"grass", "farmland", "meadow"}, cfg.ColdAir.AllowedClasses)
	assert.Equal(t, 2.0, cfg.ColdAir.SlopeThresholdDeg)
	assert.Equal(t, "pipeline-run-events", cfg.Notify.KafkaTopic)
	assert.Equal(t, "cold_air_zones", cfg.PostGIS.Table)
	assert.Equal(t, 100.0, cfg.Resolution.FlowAggregation)
}

func TestLoadReadsThresholds(t *testing.T) {
	dir := writePipelineYAML(t, `
day_filter:
  max_cloud_coverage: 15
  max_windspeed: 2.6
  min_temperature: 25
  historical_cutoff: "2023-01-01"
cold_air:
  allowed_classes: [grass, meadow]
  slope_threshold_deg: 3.5
`)

	cfg, err := config.Load(dir)

	require.NoError(t, err)
	assert.Equal(t, 15.0, cfg.DayFilter.MaxCloudCoverage)
	require.NotNil(t, cfg.DayFilter.MaxWindSpeed)
	assert.Equal(t, 2.6, *cfg.DayFilter.MaxWindSpeed)
	require.NotNil(t, cfg.DayFilter.MinTemperature)
	assert.Equal(t, 25.0, *cfg.DayFilter.MinTemperature)
	assert.Equal(t, "2023-01-01", cfg.DayFilter.HistoricalCutoff)
	assert.Equal(t, []string{"grass", "meadow"}, cfg.ColdAir.AllowedClasses)
	assert.Equal(t, 3.5, cfg.ColdAir.SlopeThresholdDeg)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	dir := writePipelineYAML(t, "")

	cfg, err := config.Load(dir)

	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		env  map[string]string
		want string
	}{
		{
			name: "cloud coverage out of range",
			yaml: "day_filter:\n  max_cloud_coverage: 120\n",
			want: "max_cloud_coverage",
		},
		{
			name: "negative wind bound",
			yaml: "day_filter:\n  max_windspeed: -1\n",
			want: "max_windspeed",
		},
		{
			name: "bad historical cutoff",
			yaml: "day_filter:\n  historical_cutoff: yesterday\n",
			want: "historical_cutoff",
		},
		{
			name: "geoserver url without workspace",
			yaml: "geoserver:\n  url: http://geoserver:8080/geoserver\n",
			want: "workspace",
		},
		{
			name: "bad log level",
			env:  map[string]string{"LOG_LEVEL": "verbose"},
			want: "LOG_LEVEL",
		},
		{
			name: "bad shutdown timeout",
			env:  map[string]string{"SHUTDOWN_TIMEOUT": "soon"},
			want: "SHUTDOWN_TIMEOUT",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			dir := writePipelineYAML(t, tc.yaml)

			_, err := config.Load(dir)

			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(t.TempDir())

	assert.Error(t, err)
}

func TestLoadSplitsBrokerList(t *testing.T) {
	dir := writePipelineYAML(t, "notify:\n  kafka_brokers: [\"kafka-1:9092,kafka-2:9092\"]\n")

	cfg, err := config.Load(dir)

	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notify.KafkaBrokers)
}

func TestLoadRegion(t *testing.T) {
	dir := t.TempDir()
	writeRegionYAML(t, dir, "freiburg", `
bbox: [7.6, 47.9, 8.0, 48.1]
buffer_meters: 500
weather_recent: tageswerte_KL_01443_akt.zip
weather_historical: tageswerte_KL_01443_18810101_20231231_hist.zip
dem_dirs: [/data/dem/freiburg]
`)

	rc, err := config.LoadRegion(dir, "freiburg")

	require.NoError(t, err)
	assert.Equal(t, "freiburg", rc.Name)
	assert.Equal(t, 500.0, rc.BufferMeters)
	assert.Equal(t, []string{"/data/dem/freiburg"}, rc.DEMDirs)

	region, err := rc.Region()
	require.NoError(t, err)
	assert.Equal(t, 7.6, region.BBox.MinLon)
	assert.Equal(t, 48.1, region.BBox.MaxLat)
}

func TestLoadRegionBadBBox(t *testing.T) {
	dir := t.TempDir()
	writeRegionYAML(t, dir, "freiburg", "bbox: [7.6, 47.9]\n")

	_, err := config.LoadRegion(dir, "freiburg")

	assert.ErrorContains(t, err, "bbox")
}

func TestLoadRegionMissingFile(t *testing.T) {
	_, err := config.LoadRegion(t.TempDir(), "nowhere")

	assert.Error(t, err)
}
