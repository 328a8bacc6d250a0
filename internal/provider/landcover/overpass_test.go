package landcover_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanclimate/pipeline/internal/provider/landcover"
)

func writeCollection(t *testing.T, fc *geojson.FeatureCollection) string {
	t.Helper()
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "landcover.geojson")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoadFeatures(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	grass := geojson.NewFeature(orb.Polygon{orb.Ring{
		{7.8, 48.0}, {7.9, 48.0}, {7.9, 48.1}, {7.8, 48.1}, {7.8, 48.0},
	}})
	grass.ID = "101"
	grass.Properties["landuse"] = "grass"
	fc.Append(grass)
	meadow := geojson.NewFeature(orb.Polygon{orb.Ring{
		{7.6, 47.9}, {7.7, 47.9}, {7.7, 48.0}, {7.6, 48.0}, {7.6, 47.9},
	}})
	meadow.ID = "102"
	meadow.Properties["landuse"] = "meadow"
	fc.Append(meadow)

	features, err := landcover.LoadFeatures(writeCollection(t, fc))

	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "101", features[0].ID)
	assert.Equal(t, "grass", features[0].Class)
	assert.Len(t, features[0].Polygon, 1)
	assert.Equal(t, "meadow", features[1].Class)
}

func TestLoadFeaturesSkipsNonPolygons(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	point := geojson.NewFeature(orb.Point{7.8, 48.0})
	point.Properties["landuse"] = "grass"
	fc.Append(point)
	poly := geojson.NewFeature(orb.Polygon{orb.Ring{
		{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0},
	}})
	poly.Properties["landuse"] = "farmland"
	fc.Append(poly)

	features, err := landcover.LoadFeatures(writeCollection(t, fc))

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "farmland", features[0].Class)
}

func TestLoadFeaturesMissingClass(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Polygon{orb.Ring{
		{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0},
	}}))

	features, err := landcover.LoadFeatures(writeCollection(t, fc))

	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Empty(t, features[0].Class)
	assert.Empty(t, features[0].ID)
}

func TestLoadFeaturesMissingFile(t *testing.T) {
	_, err := landcover.LoadFeatures(filepath.Join(t.TempDir(), "absent.geojson"))

	assert.Error(t, err)
}

func TestLoadFeaturesBadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "landcover.geojson")
	require.NoError(t, os.WriteFile(path, []byte("not geojson"), 0o644))

	_, err := landcover.LoadFeatures(path)

	assert.Error(t, err)
}
