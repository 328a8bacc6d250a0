// Package topo derives slope, flow-direction and cold-air-zone artifacts
// from the elevation model and land-cover layer. Every function is pure
// over its input grids.
package topo

import (
	"math"

	"github.com/urbanclimate/pipeline/internal/raster"
)

// Slope computes the steepest-descent angle in degrees per cell from a
// finite-difference gradient over the 8-neighborhood (Horn weighting).
// Edge cells use only their available neighbors; the window is reduced,
// never wrapped around. Cells without elevation stay nodata.
func Slope(dem *raster.Grid) *raster.Grid {
	out := raster.NewLike(dem)
	for row := 0; row < dem.Height; row++ {
		for col := 0; col < dem.Width; col++ {
			if dem.IsNodata(row, col) {
				continue
			}
			gx := directionalGradient(dem, row, col, false)
			gy := directionalGradient(dem, row, col, true)
			out.Set(row, col, math.Atan(math.Hypot(gx, gy))*180/math.Pi)
		}
	}
	return out
}

// directionalGradient estimates dz/dx (or dz/dy when vertical) at (row,
// col) as the Horn-weighted mean of per-line finite differences. Each of
// the three lines through the window contributes a central difference when
// both outer cells exist, a one-sided difference when only one does, and
// nothing when the line is entirely unavailable.
func directionalGradient(dem *raster.Grid, row, col int, vertical bool) float64 {
	hornWeights := [3]float64{1, 2, 1}

	var sum, weightSum float64
	for i, w := range hornWeights {
		lateral := i - 1

		var lo, mid, hi float64
		var okLo, okMid, okHi bool
		if vertical {
			// Line runs north-south at column col+lateral.
			lo, okLo = cellValue(dem, row-1, col+lateral)
			mid, okMid = cellValue(dem, row, col+lateral)
			hi, okHi = cellValue(dem, row+1, col+lateral)
		} else {
			lo, okLo = cellValue(dem, row+lateral, col-1)
			mid, okMid = cellValue(dem, row+lateral, col)
			hi, okHi = cellValue(dem, row+lateral, col+1)
		}

		var d float64
		switch {
		case okLo && okHi:
			d = (hi - lo) / (2 * dem.CellSize)
		case okMid && okHi:
			d = (hi - mid) / dem.CellSize
		case okLo && okMid:
			d = (mid - lo) / dem.CellSize
		default:
			continue
		}
		sum += w * d
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return sum / weightSum
}

func cellValue(g *raster.Grid, row, col int) (float64, bool) {
	if !g.InBounds(row, col) {
		return 0, false
	}
	return g.At(row, col)
}
