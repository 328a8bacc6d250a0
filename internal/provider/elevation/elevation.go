// Package elevation loads the user-supplied digital elevation model from
// local storage. The model is read-only input: the pipeline never writes
// back into the DEM directories.
package elevation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/urbanclimate/pipeline/internal/raster"
)

// LoadDEM reads every .grid tile in dir and mosaics them into a single
// elevation grid. Tiles must agree on cell size and reference system;
// gaps between tiles stay nodata. A directory holding a single tile, the
// common municipal case, loads without mosaicking.
func LoadDEM(dir string) (*raster.Grid, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.grid"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no elevation tiles (*.grid) in %s", dir)
	}
	sort.Strings(paths)

	tiles := make([]*raster.Grid, 0, len(paths))
	for _, p := range paths {
		g, err := raster.ReadGridFile(p)
		if err != nil {
			return nil, fmt.Errorf("load elevation tile %s: %w", p, err)
		}
		tiles = append(tiles, g)
	}
	if len(tiles) == 1 {
		return tiles[0], nil
	}
	return mosaic(tiles)
}

// LoadDEMs mosaics the tiles of every configured directory into one grid.
func LoadDEMs(dirs []string) (*raster.Grid, error) {
	if err := ListDEMDirs(dirs); err != nil {
		return nil, err
	}
	tiles := make([]*raster.Grid, 0, len(dirs))
	for _, d := range dirs {
		g, err := LoadDEM(d)
		if err != nil {
			return nil, err
		}
		tiles = append(tiles, g)
	}
	if len(tiles) == 1 {
		return tiles[0], nil
	}
	return mosaic(tiles)
}

func mosaic(tiles []*raster.Grid) (*raster.Grid, error) {
	ref := tiles[0]
	minX, maxX := ref.OriginX, ref.OriginX+float64(ref.Width)*ref.CellSize
	maxY, minY := ref.OriginY, ref.OriginY-float64(ref.Height)*ref.CellSize

	for _, t := range tiles[1:] {
		if t.CellSize != ref.CellSize || t.CRS != ref.CRS {
			return nil, fmt.Errorf("elevation tiles disagree on cell size or CRS (%v/%s vs %v/%s)",
				t.CellSize, t.CRS, ref.CellSize, ref.CRS)
		}
		if t.OriginX < minX {
			minX = t.OriginX
		}
		if x := t.OriginX + float64(t.Width)*t.CellSize; x > maxX {
			maxX = x
		}
		if t.OriginY > maxY {
			maxY = t.OriginY
		}
		if y := t.OriginY - float64(t.Height)*t.CellSize; y < minY {
			minY = y
		}
	}

	width := int((maxX-minX)/ref.CellSize + 0.5)
	height := int((maxY-minY)/ref.CellSize + 0.5)
	out := raster.New(width, height, minX, maxY, ref.CellSize, ref.CRS)

	for _, t := range tiles {
		colOff := int((t.OriginX-minX)/ref.CellSize + 0.5)
		rowOff := int((maxY-t.OriginY)/ref.CellSize + 0.5)
		for row := 0; row < t.Height; row++ {
			for col := 0; col < t.Width; col++ {
				if v, ok := t.At(row, col); ok {
					out.Set(rowOff+row, colOff+col, v)
				}
			}
		}
	}
	return out, nil
}

// ListDEMDirs validates that every configured DEM directory exists.
func ListDEMDirs(dirs []string) error {
	if len(dirs) == 0 {
		return fmt.Errorf("no elevation directories configured; set dem_dirs in the region config")
	}
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil {
			return fmt.Errorf("elevation directory %s: %w", d, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("elevation path %s is not a directory", d)
		}
	}
	return nil
}
