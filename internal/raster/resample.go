package raster

import "math"

// ResampleMethod selects the interpolation used when regridding.
type ResampleMethod int

const (
	// Nearest takes the value of the closest source cell. Used for
	// categorical and mask bands where interpolation would invent classes.
	Nearest ResampleMethod = iota
	// Bilinear interpolates from the four surrounding source cells.
	Bilinear
)

// Resample regrids src onto the geometry of ref and returns a new grid with
// ref's shape, origin and cell size. Cells that fall outside src or whose
// source support is entirely nodata become nodata.
func Resample(src, ref *Grid, method ResampleMethod) *Grid {
	if src.SameShape(ref) {
		return src.Clone()
	}

	out := NewLike(ref)
	for row := 0; row < ref.Height; row++ {
		for col := 0; col < ref.Width; col++ {
			x, y := ref.CellCenter(row, col)
			var v float64
			var ok bool
			switch method {
			case Bilinear:
				v, ok = src.sampleBilinear(x, y)
			default:
				v, ok = src.sampleNearest(x, y)
			}
			if ok {
				out.Set(row, col, v)
			}
		}
	}
	return out
}

func (g *Grid) sampleNearest(x, y float64) (float64, bool) {
	row, col, ok := g.CellAt(x, y)
	if !ok {
		return 0, false
	}
	return g.At(row, col)
}

// sampleBilinear interpolates between the centers of the four cells
// surrounding (x, y). Nodata neighbors are excluded and the weights of the
// remaining ones renormalized; all-nodata support yields nodata.
func (g *Grid) sampleBilinear(x, y float64) (float64, bool) {
	// Continuous cell-center coordinates.
	fc := (x-g.OriginX)/g.CellSize - 0.5
	fr := (g.OriginY-y)/g.CellSize - 0.5

	c0 := int(math.Floor(fc))
	r0 := int(math.Floor(fr))
	tc := fc - float64(c0)
	tr := fr - float64(r0)

	var sum, weight float64
	for dr := 0; dr <= 1; dr++ {
		for dc := 0; dc <= 1; dc++ {
			row, col := r0+dr, c0+dc
			if !g.InBounds(row, col) {
				continue
			}
			v, ok := g.At(row, col)
			if !ok {
				continue
			}
			w := 1.0
			if dc == 0 {
				w *= 1 - tc
			} else {
				w *= tc
			}
			if dr == 0 {
				w *= 1 - tr
			} else {
				w *= tr
			}
			sum += w * v
			weight += w
		}
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}
