// Package raster provides the in-memory pixel grid shared by all derived,
// aggregated and topographic rasters, plus resampling and a compact on-disk
// encoding.
package raster

import (
	"fmt"
	"math"
)

// Grid is a single-band raster: row-major values with an explicit nodata
// mask, a square cell size and a top-left origin in the units of its
// coordinate reference system. Nodata cells are excluded from every numeric
// reduction.
type Grid struct {
	Width    int
	Height   int
	Values   []float64
	mask     []bool // true = nodata
	OriginX  float64
	OriginY  float64
	CellSize float64
	CRS      string
}

// New creates a grid of the given shape with every cell set to nodata.
func New(width, height int, originX, originY, cellSize float64, crs string) *Grid {
	g := &Grid{
		Width:    width,
		Height:   height,
		Values:   make([]float64, width*height),
		mask:     make([]bool, width*height),
		OriginX:  originX,
		OriginY:  originY,
		CellSize: cellSize,
		CRS:      crs,
	}
	for i := range g.mask {
		g.mask[i] = true
	}
	return g
}

// NewLike creates an all-nodata grid sharing ref's shape and georeferencing.
func NewLike(ref *Grid) *Grid {
	return New(ref.Width, ref.Height, ref.OriginX, ref.OriginY, ref.CellSize, ref.CRS)
}

func (g *Grid) index(row, col int) int {
	return row*g.Width + col
}

// InBounds reports whether (row, col) addresses a cell of the grid.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Height && col >= 0 && col < g.Width
}

// At returns the value at (row, col) and whether it is valid (not nodata).
func (g *Grid) At(row, col int) (float64, bool) {
	i := g.index(row, col)
	if g.mask[i] {
		return 0, false
	}
	return g.Values[i], true
}

// Set stores a valid value at (row, col). Non-finite values are stored as
// nodata so NaN and Inf never propagate into reductions.
func (g *Grid) Set(row, col int, v float64) {
	i := g.index(row, col)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		g.Values[i] = 0
		g.mask[i] = true
		return
	}
	g.Values[i] = v
	g.mask[i] = false
}

// SetNodata marks (row, col) as nodata.
func (g *Grid) SetNodata(row, col int) {
	i := g.index(row, col)
	g.Values[i] = 0
	g.mask[i] = true
}

// IsNodata reports whether (row, col) holds no valid measurement.
func (g *Grid) IsNodata(row, col int) bool {
	return g.mask[g.index(row, col)]
}

// CellCenter returns the CRS coordinates of the cell's center point.
func (g *Grid) CellCenter(row, col int) (x, y float64) {
	x = g.OriginX + (float64(col)+0.5)*g.CellSize
	y = g.OriginY - (float64(row)+0.5)*g.CellSize
	return x, y
}

// CellAt returns the (row, col) containing the CRS point (x, y) and whether
// it falls inside the grid extent.
func (g *Grid) CellAt(x, y float64) (row, col int, ok bool) {
	col = int(math.Floor((x - g.OriginX) / g.CellSize))
	row = int(math.Floor((g.OriginY - y) / g.CellSize))
	return row, col, g.InBounds(row, col)
}

// SameShape reports whether o has identical dimensions and georeferencing.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		g.OriginX == o.OriginX && g.OriginY == o.OriginY &&
		g.CellSize == o.CellSize && g.CRS == o.CRS
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := &Grid{
		Width:    g.Width,
		Height:   g.Height,
		Values:   make([]float64, len(g.Values)),
		mask:     make([]bool, len(g.mask)),
		OriginX:  g.OriginX,
		OriginY:  g.OriginY,
		CellSize: g.CellSize,
		CRS:      g.CRS,
	}
	copy(c.Values, g.Values)
	copy(c.mask, g.mask)
	return c
}

// MinMax returns the extremes over valid cells. ok is false when the grid
// holds no valid cell at all.
func (g *Grid) MinMax() (minV, maxV float64, ok bool) {
	minV = math.Inf(1)
	maxV = math.Inf(-1)
	for i, v := range g.Values {
		if g.mask[i] {
			continue
		}
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return minV, maxV, true
}

// ValidCount returns the number of cells holding a valid measurement.
func (g *Grid) ValidCount() int {
	n := 0
	for _, m := range g.mask {
		if !m {
			n++
		}
	}
	return n
}

// Equal reports bit-identical equality of shape, values and mask.
// Valid values compare by their exact float64 bits.
func (g *Grid) Equal(o *Grid) bool {
	if !g.SameShape(o) {
		return false
	}
	for i := range g.Values {
		if g.mask[i] != o.mask[i] {
			return false
		}
		if !g.mask[i] && math.Float64bits(g.Values[i]) != math.Float64bits(o.Values[i]) {
			return false
		}
	}
	return true
}

func (g *Grid) validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("raster: invalid shape %dx%d", g.Width, g.Height)
	}
	if len(g.Values) != g.Width*g.Height || len(g.mask) != g.Width*g.Height {
		return fmt.Errorf("raster: backing slices do not match shape %dx%d", g.Width, g.Height)
	}
	if g.CellSize <= 0 {
		return fmt.Errorf("raster: cell size %v must be positive", g.CellSize)
	}
	return nil
}
