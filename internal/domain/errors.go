package domain

import "errors"

// Sentinel errors of the pipeline's failure taxonomy. Callers classify
// failures with errors.Is; wrapping sites add context with fmt.Errorf and %w.
var (
	// ErrSourceUnavailable means a provider could not supply data after the
	// retry budget was exhausted. The affected module run fails; sibling
	// modules and regions are unaffected.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInvalidRegion means the region geometry could not be resolved by a
	// provider. Fatal to every module of that region.
	ErrInvalidRegion = errors.New("invalid region")

	// ErrDependencyFailed marks a module that was skipped because an
	// upstream module it depends on failed.
	ErrDependencyFailed = errors.New("dependency failed")

	// ErrGeometryRepairFailed marks a single vector feature that could not
	// be repaired. The feature is dropped and reported; the run continues.
	ErrGeometryRepairFailed = errors.New("geometry repair failed")
)
