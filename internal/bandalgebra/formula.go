// Package bandalgebra computes per-date derived rasters (vegetation and
// moisture indices, land surface temperature) from selected scene bands.
//
// Each module maps to a fixed set of index specifications, each a pure
// function over a declared input-band set. The mapping is data, not a type
// hierarchy, so every formula can be tested in isolation.
package bandalgebra

import (
	"math"

	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/raster"
)

// Canonical band names. Sentinel-2 carries the optical set at 10 m
// (B04, B08) and 20 m (B11); Landsat adds the 100 m thermal band B10.
const (
	BandRed  = "B04"
	BandNIR  = "B08"
	BandSWIR = "B11"
	// Landsat near-infrared differs from the Sentinel-2 numbering.
	BandNIRLandsat = "B05"
	BandTIR        = "B10"
)

// Physical constants for the radiance-to-temperature conversion
// (Landsat Collection 2 method).
const (
	planckConstant    = 6.62607015e-34 // J*s
	speedOfLight      = 2.99792458e8   // m/s
	boltzmannConstant = 1.380649e-23   // J/K

	// tirCenterWavelength is the center wavelength of the thermal band in
	// micrometers.
	tirCenterWavelength = 10.895
)

// BandSet maps band names to their rasters for one scene.
type BandSet map[string]*raster.Grid

// IndexSpec binds an index name to its input bands and formula. Bands[0] is
// the reference band: its grid defines the output geometry and all other
// bands are resampled onto it before algebra. Categorical bands are
// resampled nearest-neighbor, everything else bilinear.
type IndexSpec struct {
	Name        string
	Bands       []string
	Categorical map[string]bool
	Compute     func(bands BandSet) *raster.Grid
}

// moduleIndices is the fixed module-to-formula mapping.
var moduleIndices = map[domain.Module][]IndexSpec{
	domain.ModuleVegetationIndices: {
		{
			Name:  "ndvi",
			Bands: []string{BandNIR, BandRed},
			Compute: func(b BandSet) *raster.Grid {
				return NormalizedDifference(b[BandNIR], b[BandRed])
			},
		},
		{
			Name:  "ndmi",
			Bands: []string{BandNIR, BandSWIR},
			Compute: func(b BandSet) *raster.Grid {
				return NormalizedDifference(b[BandNIR], b[BandSWIR])
			},
		},
	},
	domain.ModuleLandSurfaceTemperature: {
		{
			Name:  "lst",
			Bands: []string{BandTIR, BandNIRLandsat, BandRed},
			Compute: func(b BandSet) *raster.Grid {
				return LandSurfaceTemperature(b[BandNIRLandsat], b[BandRed], b[BandTIR])
			},
		},
	},
}

// IndicesFor returns the index specifications of a module, or nil when the
// module derives no rasters from imagery.
func IndicesFor(m domain.Module) []IndexSpec {
	return moduleIndices[m]
}

// NormalizedDifference computes (a-b)/(a+b) per pixel. Cells where either
// input is nodata, or where the denominator is zero, become nodata instead
// of propagating a numeric error.
func NormalizedDifference(a, b *raster.Grid) *raster.Grid {
	out := raster.NewLike(a)
	for row := 0; row < a.Height; row++ {
		for col := 0; col < a.Width; col++ {
			va, okA := a.At(row, col)
			vb, okB := b.At(row, col)
			if !okA || !okB {
				continue
			}
			denom := va + vb
			if denom == 0 {
				continue
			}
			out.Set(row, col, (va-vb)/denom)
		}
	}
	return out
}

// VegetationProportion rescales an NDVI raster to [0,1] by its own extremes
// and squares it, yielding the fractional vegetation cover used in the
// emissivity estimate. A uniform NDVI carries no contrast, so every valid
// cell maps to zero.
func VegetationProportion(ndvi *raster.Grid) *raster.Grid {
	out := raster.NewLike(ndvi)
	minV, maxV, ok := ndvi.MinMax()
	span := maxV - minV
	for row := 0; row < ndvi.Height; row++ {
		for col := 0; col < ndvi.Width; col++ {
			v, valid := ndvi.At(row, col)
			if !valid {
				continue
			}
			if !ok || span == 0 {
				out.Set(row, col, 0)
				continue
			}
			scaled := (v - minV) / span
			out.Set(row, col, scaled*scaled)
		}
	}
	return out
}

// LandSurfaceTemperature converts brightness temperature to emissivity-
// corrected land surface temperature and normalizes the result to [0,1]
// over the scene. The emissivity is estimated from the fractional
// vegetation cover and clamped to the physically valid range.
func LandSurfaceTemperature(nir, red, tir *raster.Grid) *raster.Grid {
	pv := VegetationProportion(NormalizedDifference(nir, red))

	waveLength := tirCenterWavelength * 1e-6
	c2 := planckConstant * speedOfLight / boltzmannConstant

	lst := raster.NewLike(tir)
	for row := 0; row < tir.Height; row++ {
		for col := 0; col < tir.Width; col++ {
			bt, okT := tir.At(row, col)
			fv, okP := pv.At(row, col)
			if !okT || !okP || bt <= 0 {
				continue
			}
			epsilon := 0.004*fv + 0.986
			epsilon = math.Min(math.Max(epsilon, 0.95), 0.99)
			lst.Set(row, col, bt/(1+(waveLength*bt/c2)*math.Log(epsilon)))
		}
	}
	return normalize(lst)
}

// normalize rescales valid cells to [0,1] by the grid's extremes. A grid
// without contrast maps every valid cell to zero.
func normalize(g *raster.Grid) *raster.Grid {
	out := raster.NewLike(g)
	minV, maxV, ok := g.MinMax()
	span := maxV - minV
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			v, valid := g.At(row, col)
			if !valid {
				continue
			}
			if !ok || span == 0 {
				out.Set(row, col, 0)
				continue
			}
			out.Set(row, col, (v-minV)/span)
		}
	}
	return out
}
