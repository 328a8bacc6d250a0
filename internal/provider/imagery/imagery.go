// Package imagery defines the contract with the satellite scene catalog.
// The pipeline only depends on the data contract: scene metadata filtered
// by region, date range and cloud ceiling, and band rasters fetched per
// scene. The concrete network client lives outside the core.
package imagery

import (
	"context"

	"github.com/urbanclimate/pipeline/internal/bandalgebra"
	"github.com/urbanclimate/pipeline/internal/domain"
)

// Catalog is the satellite imagery provider contract.
type Catalog interface {
	// SearchScenes returns metadata for every overpass of the region within
	// the date range whose cloud coverage does not exceed maxCloud. The
	// catalog declares each scene's available bands; the engine never
	// assumes bands beyond that declaration.
	SearchScenes(ctx context.Context, region domain.Region, tr domain.TimeRange, maxCloud float64) ([]domain.SceneRecord, error)

	// FetchBands downloads the named band rasters of one scene.
	FetchBands(ctx context.Context, scene domain.SceneRecord, bands []string) (bandalgebra.BandSet, error)
}
