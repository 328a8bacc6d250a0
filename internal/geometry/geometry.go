// Package geometry holds the vector types shared by the land-cover
// selection and zone-delineation steps, plus ring repair for defective
// source polygons.
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/urbanclimate/pipeline/internal/domain"
)

// LandCoverFeature is one class-labeled polygon from a land-cover dataset.
type LandCoverFeature struct {
	ID      string
	Class   string
	Polygon orb.Polygon
}

// Repair normalizes a polygon the way a buffer-zero fix does: closes open
// rings, drops consecutive duplicate points and rejects degenerate
// geometry. It returns ErrGeometryRepairFailed when the polygon cannot be
// made valid; callers drop the feature and continue.
func Repair(p orb.Polygon) (orb.Polygon, error) {
	if len(p) == 0 {
		return nil, fmt.Errorf("%w: polygon has no rings", domain.ErrGeometryRepairFailed)
	}
	out := make(orb.Polygon, 0, len(p))
	for i, ring := range p {
		fixed, err := repairRing(ring)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			// Defective holes are dropped; the outer ring decides validity.
			continue
		}
		out = append(out, fixed)
	}
	if planar.Area(out) == 0 {
		return nil, fmt.Errorf("%w: polygon has zero area", domain.ErrGeometryRepairFailed)
	}
	return out, nil
}

func repairRing(r orb.Ring) (orb.Ring, error) {
	fixed := make(orb.Ring, 0, len(r))
	for _, pt := range r {
		if len(fixed) > 0 && fixed[len(fixed)-1] == pt {
			continue
		}
		fixed = append(fixed, pt)
	}
	if len(fixed) > 1 && fixed[0] == fixed[len(fixed)-1] {
		fixed = fixed[:len(fixed)-1]
	}
	if len(fixed) < 3 {
		return nil, fmt.Errorf("%w: ring has fewer than 3 distinct points", domain.ErrGeometryRepairFailed)
	}
	fixed = append(fixed, fixed[0])
	return fixed, nil
}

// ClipToBBox drops features whose polygon does not intersect the region
// extent and returns the survivors unchanged. Selection by extent is
// sufficient here: zone delineation re-clips against the slope grid anyway.
func ClipToBBox(features []LandCoverFeature, box domain.BBox) []LandCoverFeature {
	bound := orb.Bound{
		Min: orb.Point{box.MinLon, box.MinLat},
		Max: orb.Point{box.MaxLon, box.MaxLat},
	}
	out := make([]LandCoverFeature, 0, len(features))
	for _, f := range features {
		if f.Polygon.Bound().Intersects(bound) {
			out = append(out, f)
		}
	}
	return out
}

// CellRectangle returns the axis-aligned polygon covering one raster cell.
func CellRectangle(minX, minY, maxX, maxY float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}
}
