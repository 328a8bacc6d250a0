package bandalgebra_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanclimate/pipeline/internal/bandalgebra"
	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/raster"
)

func uniformGrid(w, h int, v float64) *raster.Grid {
	g := raster.New(w, h, 0, float64(h)*10, 10, "EPSG:32632")
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			g.Set(row, col, v)
		}
	}
	return g
}

func TestNormalizedDifference(t *testing.T) {
	nir := uniformGrid(2, 2, 0.8)
	red := uniformGrid(2, 2, 0.2)

	out := bandalgebra.NormalizedDifference(nir, red)
	v, ok := out.At(0, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.6, v, 1e-12) // (0.8-0.2)/(0.8+0.2)
}

func TestNormalizedDifference_ZeroDenominatorIsNodata(t *testing.T) {
	a := uniformGrid(1, 1, 0.5)
	b := uniformGrid(1, 1, -0.5)

	out := bandalgebra.NormalizedDifference(a, b)
	assert.True(t, out.IsNodata(0, 0))
}

func TestNormalizedDifference_NodataPropagates(t *testing.T) {
	a := uniformGrid(2, 1, 0.5)
	b := uniformGrid(2, 1, 0.1)
	b.SetNodata(0, 1)

	out := bandalgebra.NormalizedDifference(a, b)
	assert.False(t, out.IsNodata(0, 0))
	assert.True(t, out.IsNodata(0, 1))
}

func TestVegetationProportion(t *testing.T) {
	ndvi := raster.New(3, 1, 0, 10, 10, "")
	ndvi.Set(0, 0, 0.2)
	ndvi.Set(0, 1, 0.5)
	ndvi.Set(0, 2, 0.8)

	out := bandalgebra.VegetationProportion(ndvi)

	vMin, _ := out.At(0, 0)
	vMid, _ := out.At(0, 1)
	vMax, _ := out.At(0, 2)
	assert.Equal(t, 0.0, vMin)
	assert.InDelta(t, 0.25, vMid, 1e-12)
	assert.Equal(t, 1.0, vMax)
}

func TestVegetationProportion_UniformInputMapsToZero(t *testing.T) {
	out := bandalgebra.VegetationProportion(uniformGrid(2, 2, 0.5))
	for col := 0; col < 2; col++ {
		v, ok := out.At(0, col)
		require.True(t, ok)
		assert.Equal(t, 0.0, v)
	}
}

func TestLandSurfaceTemperature_OrderPreservedAndNormalized(t *testing.T) {
	nir := uniformGrid(2, 1, 0.8)
	red := uniformGrid(2, 1, 0.2)
	tir := raster.New(2, 1, 0, 10, 10, "EPSG:32632")
	tir.Set(0, 0, 290) // cooler
	tir.Set(0, 1, 310) // hotter

	out := bandalgebra.LandSurfaceTemperature(nir, red, tir)

	cool, ok := out.At(0, 0)
	require.True(t, ok)
	hot, ok := out.At(0, 1)
	require.True(t, ok)
	assert.Equal(t, 0.0, cool)
	assert.Equal(t, 1.0, hot)
}

func TestLandSurfaceTemperature_NonPositiveBrightnessIsNodata(t *testing.T) {
	nir := uniformGrid(2, 1, 0.8)
	red := uniformGrid(2, 1, 0.2)
	tir := raster.New(2, 1, 0, 10, 10, "EPSG:32632")
	tir.Set(0, 0, 0)
	tir.Set(0, 1, 300)

	out := bandalgebra.LandSurfaceTemperature(nir, red, tir)
	assert.True(t, out.IsNodata(0, 0))
	assert.False(t, out.IsNodata(0, 1))
}

func testScene(bands ...string) domain.SceneRecord {
	return domain.SceneRecord{
		ID:            "S2A_20240715",
		Date:          domain.Date{Year: 2024, Month: time.July, Day: 15},
		CloudCoverage: 5,
		Bands:         bands,
	}
}

func TestEngine_Derive_VegetationIndices(t *testing.T) {
	engine := bandalgebra.NewEngine(slog.Default())
	bands := bandalgebra.BandSet{
		bandalgebra.BandNIR:  uniformGrid(2, 2, 0.8),
		bandalgebra.BandRed:  uniformGrid(2, 2, 0.2),
		bandalgebra.BandSWIR: uniformGrid(2, 2, 0.4),
	}
	scene := testScene(bandalgebra.BandNIR, bandalgebra.BandRed, bandalgebra.BandSWIR)

	derived, err := engine.Derive(scene, bands, domain.ModuleVegetationIndices)
	require.NoError(t, err)
	require.Len(t, derived, 2)

	assert.Equal(t, "ndvi", derived[0].Index)
	assert.Equal(t, "ndmi", derived[1].Index)
	assert.Equal(t, scene.Date, derived[0].Date)

	ndvi, ok := derived[0].Grid.At(0, 0)
	require.True(t, ok)
	assert.InDelta(t, 0.6, ndvi, 1e-12)
}

func TestEngine_Derive_IsDeterministic(t *testing.T) {
	engine := bandalgebra.NewEngine(slog.Default())
	newBands := func() bandalgebra.BandSet {
		return bandalgebra.BandSet{
			bandalgebra.BandNIR:  uniformGrid(3, 3, 0.7),
			bandalgebra.BandRed:  uniformGrid(3, 3, 0.3),
			bandalgebra.BandSWIR: uniformGrid(3, 3, 0.5),
		}
	}
	scene := testScene(bandalgebra.BandNIR, bandalgebra.BandRed, bandalgebra.BandSWIR)

	first, err := engine.Derive(scene, newBands(), domain.ModuleVegetationIndices)
	require.NoError(t, err)
	second, err := engine.Derive(scene, newBands(), domain.ModuleVegetationIndices)
	require.NoError(t, err)

	for i := range first {
		assert.True(t, first[i].Grid.Equal(second[i].Grid), "index %s", first[i].Index)
	}
}

func TestEngine_Derive_ResamplesSecondaryBands(t *testing.T) {
	engine := bandalgebra.NewEngine(slog.Default())

	// SWIR at 20m against the 10m NIR reference.
	swir := raster.New(2, 2, 0, 40, 20, "EPSG:32632")
	for row := 0; row < 2; row++ {
		for col := 0; col < 2; col++ {
			swir.Set(row, col, 0.4)
		}
	}
	bands := bandalgebra.BandSet{
		bandalgebra.BandNIR:  uniformGrid(4, 4, 0.8),
		bandalgebra.BandRed:  uniformGrid(4, 4, 0.2),
		bandalgebra.BandSWIR: swir,
	}
	scene := testScene(bandalgebra.BandNIR, bandalgebra.BandRed, bandalgebra.BandSWIR)

	derived, err := engine.Derive(scene, bands, domain.ModuleVegetationIndices)
	require.NoError(t, err)

	ndmi := derived[1]
	assert.Equal(t, 4, ndmi.Grid.Width, "output must follow the reference geometry")
	v, ok := ndmi.Grid.At(1, 1)
	require.True(t, ok)
	assert.InDelta(t, (0.8-0.4)/(0.8+0.4), v, 1e-12)
}

func TestEngine_Derive_MissingBandDeclarationFails(t *testing.T) {
	engine := bandalgebra.NewEngine(slog.Default())
	bands := bandalgebra.BandSet{
		bandalgebra.BandNIR: uniformGrid(2, 2, 0.8),
		bandalgebra.BandRed: uniformGrid(2, 2, 0.2),
	}
	scene := testScene(bandalgebra.BandNIR, bandalgebra.BandRed) // no SWIR

	_, err := engine.Derive(scene, bands, domain.ModuleVegetationIndices)
	assert.Error(t, err)
}

func TestEngine_Derive_SaturatedReadingsMasked(t *testing.T) {
	engine := bandalgebra.NewEngine(slog.Default())

	nir := uniformGrid(2, 1, 0.8)
	nir.Set(0, 1, 65535) // saturated sensor reading
	bands := bandalgebra.BandSet{
		bandalgebra.BandNIR:  nir,
		bandalgebra.BandRed:  uniformGrid(2, 1, 0.2),
		bandalgebra.BandSWIR: uniformGrid(2, 1, 0.4),
	}
	scene := testScene(bandalgebra.BandNIR, bandalgebra.BandRed, bandalgebra.BandSWIR)

	derived, err := engine.Derive(scene, bands, domain.ModuleVegetationIndices)
	require.NoError(t, err)
	assert.True(t, derived[0].Grid.IsNodata(0, 1))
	assert.False(t, derived[0].Grid.IsNodata(0, 0))
}

func TestEngine_Derive_ModuleWithoutIndices(t *testing.T) {
	engine := bandalgebra.NewEngine(slog.Default())
	_, err := engine.Derive(testScene(), bandalgebra.BandSet{}, domain.ModuleSlope)
	assert.Error(t, err)
}
