package artifact_test

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanclimate/pipeline/internal/artifact"
	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/observability"
	"github.com/urbanclimate/pipeline/internal/raster"
)

func newStore(t *testing.T) (*artifact.Store, string) {
	t.Helper()
	root := t.TempDir()
	return artifact.NewStore(root, slog.Default(), observability.NewMetricsForTesting()), root
}

func sampleGrid() *raster.Grid {
	g := raster.New(2, 2, 0, 20, 10, "EPSG:32632")
	g.Set(0, 0, 0.42)
	g.Set(1, 1, -0.1)
	return g
}

func TestKeyString(t *testing.T) {
	unbucketed := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}
	assert.Equal(t, "freiburg/slope/slope.grid", unbucketed.String())

	bucketed := artifact.Key{
		Region: "freiburg",
		Module: domain.ModuleVegetationIndices,
		Bucket: artifact.BucketMonthly,
		Name:   "ndvi_2024-07.grid",
	}
	assert.Equal(t, "freiburg/vegetation_indices/monthly/ndvi_2024-07.grid", bucketed.String())
}

func TestPathLayout(t *testing.T) {
	store, root := newStore(t)

	k := artifact.Key{
		Region: "freiburg",
		Module: domain.ModuleVegetationIndices,
		Bucket: artifact.BucketTimesteps,
		Name:   "ndvi_2024-07-10.grid",
	}
	assert.Equal(t,
		filepath.Join(root, "freiburg", "vegetation_indices", "timesteps", "ndvi_2024-07-10.grid"),
		store.Path(k))

	flat := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}
	assert.Equal(t, filepath.Join(root, "freiburg", "slope", "slope.grid"), store.Path(flat))
}

func TestWriteReadRaster(t *testing.T) {
	store, _ := newStore(t)
	k := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}
	require.False(t, store.Exists(k))

	require.NoError(t, store.WriteRaster(k, sampleGrid()))

	assert.True(t, store.Exists(k))
	got, err := store.ReadRaster(k)
	require.NoError(t, err)
	assert.True(t, got.Equal(sampleGrid()))
}

func TestWriteReadVector(t *testing.T) {
	store, _ := newStore(t)
	k := artifact.Key{Region: "freiburg", Module: domain.ModuleColdAirZones, Name: "cold_air_zones.geojson"}
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}})
	f.Properties["classes"] = "grass"
	fc.Append(f)

	require.NoError(t, store.WriteVector(k, fc))

	got, err := store.ReadVector(k)
	require.NoError(t, err)
	require.Len(t, got.Features, 1)
	assert.Equal(t, "grass", got.Features[0].Properties["classes"])
}

func TestReadMissingArtifact(t *testing.T) {
	store, _ := newStore(t)
	k := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}

	_, err := store.ReadRaster(k)
	assert.Error(t, err)

	_, err = store.ReadVector(artifact.Key{Region: "freiburg", Module: domain.ModuleColdAirZones, Name: "zones.geojson"})
	assert.Error(t, err)
}

func TestListSorted(t *testing.T) {
	store, _ := newStore(t)
	for _, name := range []string{"ndvi_2024-07-20.grid", "ndvi_2024-07-05.grid", "ndmi_2024-07-05.grid"} {
		k := artifact.Key{
			Region: "freiburg",
			Module: domain.ModuleVegetationIndices,
			Bucket: artifact.BucketTimesteps,
			Name:   name,
		}
		require.NoError(t, store.WriteRaster(k, sampleGrid()))
	}

	names, err := store.List("freiburg", domain.ModuleVegetationIndices, artifact.BucketTimesteps)

	require.NoError(t, err)
	assert.Equal(t, []string{"ndmi_2024-07-05.grid", "ndvi_2024-07-05.grid", "ndvi_2024-07-20.grid"}, names)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	store, _ := newStore(t)

	names, err := store.List("freiburg", domain.ModuleSlope, "")

	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRemoveModule(t *testing.T) {
	store, _ := newStore(t)
	keep := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}
	drop := artifact.Key{
		Region: "freiburg",
		Module: domain.ModuleVegetationIndices,
		Bucket: artifact.BucketTimesteps,
		Name:   "ndvi_2024-07-10.grid",
	}
	require.NoError(t, store.WriteRaster(keep, sampleGrid()))
	require.NoError(t, store.WriteRaster(drop, sampleGrid()))

	require.NoError(t, store.RemoveModule("freiburg", domain.ModuleVegetationIndices))

	assert.False(t, store.Exists(drop))
	assert.True(t, store.Exists(keep))
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	store, root := newStore(t)
	k := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}
	require.NoError(t, store.WriteRaster(k, sampleGrid()))

	var stray []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() != "slope.grid" {
			stray = append(stray, path)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, stray)
}
