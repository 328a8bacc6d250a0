// Package landcover fetches class-labeled land-use polygons from
// OpenStreetMap via the Overpass API. The dataset is fetched once per
// region through the source cache; there are no incremental updates.
package landcover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/serjvanilla/go-overpass"

	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/geometry"
)

const classProperty = "landuse"

// OverpassSource queries OSM land-use polygons for a region and persists
// them as GeoJSON through the source cache.
type OverpassSource struct {
	client  overpass.Client
	classes []string
	logger  *slog.Logger
}

// NewOverpassSource creates a land-cover source against the given Overpass
// endpoint, restricted to the listed landuse classes.
func NewOverpassSource(endpoint string, classes []string, timeout time.Duration, logger *slog.Logger) *OverpassSource {
	httpClient := &http.Client{Timeout: timeout}
	return &OverpassSource{
		client:  overpass.NewWithSettings(endpoint, 1, httpClient),
		classes: classes,
		logger:  logger,
	}
}

func (s *OverpassSource) Name() string { return "osm_landcover" }

// Fetch queries closed landuse ways inside the region extent and writes
// them to w as a GeoJSON feature collection.
func (s *OverpassSource) Fetch(ctx context.Context, region domain.Region, _ domain.TimeRange, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	area := region.Area()
	query := fmt.Sprintf(`
		[out:json];
		way["landuse"~"%s"](%s);
		out body;
		>;
		out skel qt;
	`, strings.Join(s.classes, "|"), area.OverpassBounds())

	result, err := s.client.Query(query)
	if err != nil {
		return fmt.Errorf("overpass query: %w", err)
	}

	fc := geojson.NewFeatureCollection()
	for _, way := range result.Ways {
		ring := wayRing(way)
		if ring == nil {
			continue
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = strconv.FormatInt(way.ID, 10)
		f.Properties[classProperty] = way.Tags[classProperty]
		fc.Append(f)
	}
	s.logger.Info("fetched land-cover polygons",
		"region", region.Name, "classes", strings.Join(s.classes, ","), "features", len(fc.Features))

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode land-cover GeoJSON: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// wayRing converts a closed way to a polygon ring, or nil when the way is
// open or degenerate.
func wayRing(way *overpass.Way) orb.Ring {
	if len(way.Nodes) < 4 {
		return nil
	}
	ring := make(orb.Ring, 0, len(way.Nodes))
	for _, node := range way.Nodes {
		ring = append(ring, orb.Point{node.Lon, node.Lat})
	}
	if ring[0] != ring[len(ring)-1] {
		return nil
	}
	return ring
}

// LoadFeatures reads a cached land-cover GeoJSON payload back into
// class-labeled features. Non-polygon geometries are skipped.
func LoadFeatures(path string) ([]geometry.LandCoverFeature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read land-cover payload: %w", err)
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode land-cover GeoJSON: %w", err)
	}

	out := make([]geometry.LandCoverFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		poly, ok := f.Geometry.(orb.Polygon)
		if !ok {
			continue
		}
		class, _ := f.Properties[classProperty].(string)
		id := ""
		if f.ID != nil {
			id = fmt.Sprint(f.ID)
		}
		out = append(out, geometry.LandCoverFeature{ID: id, Class: class, Polygon: poly})
	}
	return out, nil
}
