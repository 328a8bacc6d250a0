package topo

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/peterstace/simplefeatures/geom"

	"github.com/urbanclimate/pipeline/internal/geometry"
	"github.com/urbanclimate/pipeline/internal/raster"
)

// ColdAirZone is the dissolved cold-air-formation geometry for one region
// and module variant. Regenerated wholesale on override, never patched.
type ColdAirZone struct {
	Region           string
	SlopeConstrained bool
	Classes          []string // land-cover classes that contributed
	Geometry         orb.MultiPolygon
}

// Area returns the planar area of the zone in the squared units of its
// coordinate reference system.
func (z ColdAirZone) Area() float64 {
	return planar.Area(z.Geometry)
}

// ColdAirZones selects the land-cover polygons belonging to the allow-list
// of cold-air-favorable classes and dissolves them into one zone via a
// running union, so overlapping source features contribute their shared
// area only once. When a slope grid is supplied, each polygon is further
// restricted to the sub-area where slope <= thresholdDeg.
//
// Self-intersecting or otherwise defective source polygons are repaired
// first; features that fail repair or break the union are dropped and
// counted, never fatal to the run. The returned dropped count feeds the
// metrics and the run log.
func ColdAirZones(region string, features []geometry.LandCoverFeature, allowedClasses []string, slope *raster.Grid, thresholdDeg float64, logger *slog.Logger) (ColdAirZone, int, error) {
	allowed := map[string]bool{}
	for _, c := range allowedClasses {
		allowed[c] = true
	}

	zone := ColdAirZone{
		Region:           region,
		SlopeConstrained: slope != nil,
	}
	usedClasses := map[string]bool{}
	dropped := 0

	var acc geom.Geometry
	for _, f := range features {
		if !allowed[f.Class] {
			continue
		}
		repaired, err := geometry.Repair(f.Polygon)
		if err != nil {
			dropped++
			logger.Warn("dropping unrepairable land-cover feature",
				"feature", f.ID, "class", f.Class, "error", err)
			continue
		}

		var parts []orb.Polygon
		if slope == nil {
			parts = []orb.Polygon{repaired}
		} else {
			parts = constrainToSlope(repaired, slope, thresholdDeg)
		}
		if len(parts) == 0 {
			continue
		}
		merged, err := unionParts(acc, parts)
		if err != nil {
			dropped++
			logger.Warn("dropping land-cover feature the zone union rejects",
				"feature", f.ID, "class", f.Class, "error", err)
			continue
		}
		acc = merged
		usedClasses[f.Class] = true
	}

	dissolved, err := multiPolygon(acc)
	if err != nil {
		return ColdAirZone{}, dropped, err
	}
	zone.Geometry = dissolved

	for c := range usedClasses {
		zone.Classes = append(zone.Classes, c)
	}
	sort.Strings(zone.Classes)
	return zone, dropped, nil
}

// unionParts folds the polygon parts into the accumulated zone geometry.
// The accumulator stays polygonal: the first part seeds it, every later
// part is unioned in.
func unionParts(acc geom.Geometry, parts []orb.Polygon) (geom.Geometry, error) {
	for _, p := range parts {
		data, err := geojson.NewGeometry(p).MarshalJSON()
		if err != nil {
			return geom.Geometry{}, err
		}
		g, err := geom.UnmarshalGeoJSON(data)
		if err != nil {
			return geom.Geometry{}, err
		}
		if acc.IsEmpty() {
			acc = g
			continue
		}
		acc, err = geom.Union(acc, g)
		if err != nil {
			return geom.Geometry{}, err
		}
	}
	return acc, nil
}

// multiPolygon converts the dissolved geometry back to orb form. A union
// of polygons is itself a Polygon or MultiPolygon; anything else means the
// inputs were degenerate.
func multiPolygon(g geom.Geometry) (orb.MultiPolygon, error) {
	if g.IsEmpty() {
		return nil, nil
	}
	data, err := g.MarshalJSON()
	if err != nil {
		return nil, err
	}
	decoded, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, err
	}
	switch v := decoded.Geometry().(type) {
	case orb.Polygon:
		return orb.MultiPolygon{v}, nil
	case orb.MultiPolygon:
		return v, nil
	default:
		return nil, fmt.Errorf("zone dissolve produced %T, want polygonal geometry", v)
	}
}

// constrainToSlope restricts a polygon to the cells where slope is valid
// and at or below the threshold. When no covered cell exceeds the
// threshold the polygon passes through whole; otherwise the passing cells
// are dissolved into row-run rectangles clipped to the grid geometry.
func constrainToSlope(poly orb.Polygon, slope *raster.Grid, thresholdDeg float64) []orb.Polygon {
	bound := poly.Bound()
	minRow, minCol := clampedCell(slope, bound.Min[0], bound.Max[1]) // top-left corner
	maxRow, maxCol := clampedCell(slope, bound.Max[0], bound.Min[1]) // bottom-right corner

	exceeds := false
	passing := map[[2]int]bool{}
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			if !slope.InBounds(row, col) {
				continue
			}
			x, y := slope.CellCenter(row, col)
			if !planar.PolygonContains(poly, orb.Point{x, y}) {
				continue
			}
			v, ok := slope.At(row, col)
			if !ok {
				continue
			}
			if v > thresholdDeg {
				exceeds = true
				continue
			}
			passing[[2]int{row, col}] = true
		}
	}

	if !exceeds {
		// Entirely within the slope limit: keep the exact source geometry.
		return []orb.Polygon{poly}
	}
	if len(passing) == 0 {
		return nil
	}
	return runRectangles(slope, passing, minRow, maxRow, minCol, maxCol)
}

// runRectangles dissolves the passing cells into one rectangle polygon per
// horizontal run of adjacent cells.
func runRectangles(g *raster.Grid, passing map[[2]int]bool, minRow, maxRow, minCol, maxCol int) []orb.Polygon {
	var out []orb.Polygon
	for row := minRow; row <= maxRow; row++ {
		runStart := -1
		for col := minCol; col <= maxCol+1; col++ {
			inRun := col <= maxCol && passing[[2]int{row, col}]
			if inRun && runStart < 0 {
				runStart = col
			}
			if !inRun && runStart >= 0 {
				out = append(out, cellRunRectangle(g, row, runStart, col-1))
				runStart = -1
			}
		}
	}
	return out
}

func cellRunRectangle(g *raster.Grid, row, colStart, colEnd int) orb.Polygon {
	minX := g.OriginX + float64(colStart)*g.CellSize
	maxX := g.OriginX + float64(colEnd+1)*g.CellSize
	maxY := g.OriginY - float64(row)*g.CellSize
	minY := g.OriginY - float64(row+1)*g.CellSize
	return geometry.CellRectangle(minX, minY, maxX, maxY)
}

// clampedCell maps the CRS point (x, y) to a grid cell index, clamped to
// the grid extent when the point lies outside it.
func clampedCell(g *raster.Grid, x, y float64) (row, col int) {
	row, col, _ = g.CellAt(x, y)
	if row < 0 {
		row = 0
	}
	if row >= g.Height {
		row = g.Height - 1
	}
	if col < 0 {
		col = 0
	}
	if col >= g.Width {
		col = g.Width - 1
	}
	return row, col
}
