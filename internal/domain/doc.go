// Package domain models the inputs and artifacts of the urban-climate
// analysis pipeline.
//
// # Data Sources
//
// The pipeline combines four kinds of geospatial input per analysis region:
//
//   - Multispectral satellite scenes from a catalog provider
//     (Sentinel-2 style optical bands for vegetation and moisture indices,
//     Landsat style thermal bands for land surface temperature). A scene is
//     one overpass over the region on one calendar date, with a declared
//     band set and a per-scene cloud-coverage percentage.
//   - Daily ground weather observations in the DWD "Klima Tag" archive
//     format: a ZIP containing a semicolon-separated CSV with one row per
//     station-day. The relevant columns are MESS_DATUM (date, YYYYMMDD),
//     FM (daily mean wind speed, m/s) and TXK (daily maximum air
//     temperature, °C).
//   - Land-cover polygons from OpenStreetMap via the Overpass API, queried
//     by landuse class (grass, farmland, meadow, ...). Fetched once per
//     region and cached.
//   - A user-supplied digital elevation model on local storage, any
//     resolution and reference system.
//
// # Module Naming
//
// Analysis modules carry stable snake_case names
// (land_surface_temperature, vegetation_indices, cold_air_zones,
// cold_air_zones_with_slope, air_flow_direction, slope). Short aliases and
// German names used by municipal operators (lst, veg, kaltluft,
// hitzeinseln, ...) resolve to the canonical names via [ResolveModules].
//
// # Caching
//
// Every expensive step is keyed and idempotent:
//
//   - Raw downloads are keyed by (provider, region, time range) and
//     recorded as a [SourceRecord]; a valid record suppresses re-fetching.
//   - Derived rasters are keyed by (region, module, index, date); at most
//     one exists per key and recomputation requires the override flag.
//   - Finished module artifacts short-circuit re-execution entirely.
//
// The override flag is the only way to invalidate any of these; nothing is
// recomputed silently with different inputs.
//
// # Error Taxonomy
//
// Failure modes are sentinel errors checked with errors.Is:
//
//	ErrSourceUnavailable   provider retries exhausted; module fails, siblings continue
//	ErrInvalidRegion       region geometry unresolvable; fatal for the whole region
//	ErrDependencyFailed    upstream module failed; module skipped, not retried
//	ErrGeometryRepairFailed  one vector feature dropped; run continues
//
// An empty day selection is deliberately absent from the taxonomy: the run
// completes normally and simply emits no new timestep artifacts.
package domain
