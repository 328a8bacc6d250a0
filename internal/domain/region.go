package domain

import (
	"fmt"
	"math"
)

// BBox is a WGS-84 bounding box in (lon, lat) order.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Valid reports whether the box has positive extent and plausible coordinates.
func (b BBox) Valid() bool {
	return b.MinLon < b.MaxLon && b.MinLat < b.MaxLat &&
		b.MinLon >= -180 && b.MaxLon <= 180 &&
		b.MinLat >= -90 && b.MaxLat <= 90
}

// Buffer expands the box by the given distance in meters on every side,
// converting meters to degrees at the box's mid latitude.
func (b BBox) Buffer(meters float64) BBox {
	if meters <= 0 {
		return b
	}
	latMid := (b.MinLat + b.MaxLat) / 2 * math.Pi / 180
	// Meters per degree of latitude/longitude at the mid latitude.
	metersPerDegLat := 111132.92 - 559.82*math.Cos(2*latMid)
	metersPerDegLon := 111412.84 * math.Cos(latMid)

	dLat := meters / metersPerDegLat
	dLon := meters / metersPerDegLon
	return BBox{
		MinLon: b.MinLon - dLon,
		MinLat: b.MinLat - dLat,
		MaxLon: b.MaxLon + dLon,
		MaxLat: b.MaxLat + dLat,
	}
}

// OverpassBounds renders the box in the (south,west,north,east) order the
// Overpass API expects.
func (b BBox) OverpassBounds() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
}

// Region is the analysis area of interest. It is the identity key for all
// downstream artifacts and must not change once a run has started.
type Region struct {
	Name         string
	BBox         BBox
	BufferMeters float64
}

// Area returns the effective analysis extent: the configured box expanded
// by the optional buffer distance.
func (r Region) Area() BBox {
	return r.BBox.Buffer(r.BufferMeters)
}

// Validate checks the region can be used as an artifact identity key.
func (r Region) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: region name is empty", ErrInvalidRegion)
	}
	if !r.BBox.Valid() {
		return fmt.Errorf("%w: bounding box %+v is not a valid WGS-84 extent", ErrInvalidRegion, r.BBox)
	}
	return nil
}
