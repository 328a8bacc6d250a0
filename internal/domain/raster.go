package domain

import "github.com/urbanclimate/pipeline/internal/raster"

// DerivedRaster is one per-date index or temperature raster produced by the
// band algebra engine. Keyed by (region, module, index, date); at most one
// exists per key and recomputation requires the override flag.
type DerivedRaster struct {
	Module Module
	Index  string // e.g. "ndvi", "ndmi", "lst"
	Date   Date
	Grid   *raster.Grid
}

// PeriodKind selects the temporal aggregation bucket size.
type PeriodKind string

const (
	PeriodMonthly PeriodKind = "monthly"
	PeriodYearly  PeriodKind = "yearly"
)

// AggregateRaster is the reduction of all DerivedRasters falling into one
// period. Count is the number of contributing rasters and is always >= 1:
// empty groups are omitted, never emitted.
type AggregateRaster struct {
	Module Module
	Index  string
	Kind   PeriodKind
	Key    string // "2024-07" for monthly, "2024" for yearly
	Grid   *raster.Grid
	Count  int
}
