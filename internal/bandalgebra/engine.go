package bandalgebra

import (
	"fmt"
	"log/slog"

	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/raster"
)

// saturationCeiling marks saturated detector readings. Optical and thermal
// bands are delivered as physical values well below this; anything at or
// above it is a saturated or fill pixel and becomes nodata before algebra.
const saturationCeiling = 65535

// Engine derives per-date rasters from scene bands. Stateless and
// deterministic: deriving the same scene and module twice yields
// bit-identical output.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a band algebra engine.
func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Derive computes every index of the module from the scene's bands. The
// first band of each index specification is the reference: secondary bands
// are resampled onto its grid (nearest-neighbor for categorical bands,
// bilinear otherwise) before the formula runs.
func (e *Engine) Derive(scene domain.SceneRecord, bands BandSet, module domain.Module) ([]domain.DerivedRaster, error) {
	specs := IndicesFor(module)
	if len(specs) == 0 {
		return nil, fmt.Errorf("module %s derives no rasters from imagery", module)
	}

	out := make([]domain.DerivedRaster, 0, len(specs))
	for _, spec := range specs {
		if !scene.HasBands(spec.Bands) {
			return nil, fmt.Errorf("scene %s on %s does not declare bands %v required by index %s",
				scene.ID, scene.Date, spec.Bands, spec.Name)
		}
		prepared, err := e.prepareBands(spec, bands)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", spec.Name, err)
		}

		grid := spec.Compute(prepared)
		e.logger.Debug("derived raster",
			"index", spec.Name, "date", scene.Date.String(),
			"valid_cells", grid.ValidCount())

		out = append(out, domain.DerivedRaster{
			Module: module,
			Index:  spec.Name,
			Date:   scene.Date,
			Grid:   grid,
		})
	}
	return out, nil
}

// prepareBands resamples secondary bands onto the reference band's grid and
// masks saturated readings.
func (e *Engine) prepareBands(spec IndexSpec, bands BandSet) (BandSet, error) {
	ref, ok := bands[spec.Bands[0]]
	if !ok {
		return nil, fmt.Errorf("reference band %s missing from payload", spec.Bands[0])
	}
	ref = maskSaturated(ref)

	prepared := BandSet{spec.Bands[0]: ref}
	for _, name := range spec.Bands[1:] {
		src, ok := bands[name]
		if !ok {
			return nil, fmt.Errorf("band %s missing from payload", name)
		}
		method := raster.Bilinear
		if spec.Categorical[name] {
			method = raster.Nearest
		}
		prepared[name] = maskSaturated(raster.Resample(src, ref, method))
	}
	return prepared, nil
}

func maskSaturated(g *raster.Grid) *raster.Grid {
	out := g.Clone()
	for row := 0; row < out.Height; row++ {
		for col := 0; col < out.Width; col++ {
			if v, ok := out.At(row, col); ok && v >= saturationCeiling {
				out.SetNodata(row, col)
			}
		}
	}
	return out
}
