package topo

import (
	"math"
	"sort"

	"github.com/urbanclimate/pipeline/internal/raster"
)

// D8 direction codes. The eight codes map bijectively onto the eight
// 45°-spaced compass bearings starting east and proceeding clockwise.
const (
	DirEast      = 1
	DirSoutheast = 2
	DirSouth     = 4
	DirSouthwest = 8
	DirWest      = 16
	DirNorthwest = 32
	DirNorth     = 64
	DirNortheast = 128

	// DirUndefined marks flat cells, local minima and grid-boundary cells.
	// Zero is outside the code set, so the sentinel can never collide with
	// a valid direction.
	DirUndefined = 0
)

// d8Neighbors lists the neighborhood in ascending code order. Iterating in
// this order with a strict improvement test yields the documented
// tie-break: of several neighbors sharing the maximal drop, the lowest
// code wins.
var d8Neighbors = []struct {
	code     int
	dr, dc   int
	distance float64
}{
	{DirEast, 0, 1, 1},
	{DirSoutheast, 1, 1, math.Sqrt2},
	{DirSouth, 1, 0, 1},
	{DirSouthwest, 1, -1, math.Sqrt2},
	{DirWest, 0, -1, 1},
	{DirNorthwest, -1, -1, math.Sqrt2},
	{DirNorth, -1, 0, 1},
	{DirNortheast, -1, 1, math.Sqrt2},
}

// FlowDirection assigns each cell the D8 code of the neighbor with the
// greatest downhill drop per unit distance, with diagonal distances
// weighted by √2. Boundary cells, flat cells and local minima get
// DirUndefined. Cells without elevation stay nodata.
func FlowDirection(dem *raster.Grid) *raster.Grid {
	out := raster.NewLike(dem)
	for row := 0; row < dem.Height; row++ {
		for col := 0; col < dem.Width; col++ {
			center, ok := dem.At(row, col)
			if !ok {
				continue
			}
			if row == 0 || col == 0 || row == dem.Height-1 || col == dem.Width-1 {
				out.Set(row, col, DirUndefined)
				continue
			}

			best := DirUndefined
			maxDrop := 0.0
			for _, n := range d8Neighbors {
				neighbor, ok := dem.At(row+n.dr, col+n.dc)
				if !ok {
					continue
				}
				drop := (center - neighbor) / (n.distance * dem.CellSize)
				if drop > maxDrop {
					maxDrop = drop
					best = n.code
				}
			}
			out.Set(row, col, float64(best))
		}
	}
	return out
}

// DirectionPoint is one block of the aggregated flow-direction vector
// layer: the block's center coordinates and its dominant direction code.
type DirectionPoint struct {
	X         float64
	Y         float64
	Direction int
}

// AggregateDirections reduces a flow-direction raster onto a coarser grid,
// emitting one point per block carrying the block's most common valid
// direction code. Blocks containing no valid direction are skipped. Count
// ties resolve to the lowest code for reproducibility.
func AggregateDirections(fdir *raster.Grid, targetResolution float64) []DirectionPoint {
	blockSize := int(targetResolution / fdir.CellSize)
	if blockSize < 1 {
		blockSize = 1
	}

	var points []DirectionPoint
	for row := 0; row < fdir.Height; row += blockSize {
		for col := 0; col < fdir.Width; col += blockSize {
			code, ok := dominantDirection(fdir, row, col, blockSize)
			if !ok {
				continue
			}
			x := fdir.OriginX + (float64(col)+float64(blockSize)/2)*fdir.CellSize
			y := fdir.OriginY - (float64(row)+float64(blockSize)/2)*fdir.CellSize
			points = append(points, DirectionPoint{X: x, Y: y, Direction: code})
		}
	}
	return points
}

func dominantDirection(fdir *raster.Grid, startRow, startCol, blockSize int) (int, bool) {
	counts := map[int]int{}
	for row := startRow; row < startRow+blockSize && row < fdir.Height; row++ {
		for col := startCol; col < startCol+blockSize && col < fdir.Width; col++ {
			v, ok := fdir.At(row, col)
			if !ok {
				continue
			}
			code := int(v)
			if validDirection(code) {
				counts[code]++
			}
		}
	}
	if len(counts) == 0 {
		return 0, false
	}

	codes := make([]int, 0, len(counts))
	for code := range counts {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	best, bestCount := 0, 0
	for _, code := range codes {
		if counts[code] > bestCount {
			best, bestCount = code, counts[code]
		}
	}
	return best, true
}

func validDirection(code int) bool {
	switch code {
	case DirEast, DirSoutheast, DirSouth, DirSouthwest, DirWest, DirNorthwest, DirNorth, DirNortheast:
		return true
	}
	return false
}
