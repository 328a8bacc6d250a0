package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Module identifies one analysis workflow of the pipeline.
type Module string

const (
	ModuleLandSurfaceTemperature Module = "land_surface_temperature"
	ModuleVegetationIndices      Module = "vegetation_indices"
	ModuleColdAirZones           Module = "cold_air_zones"
	ModuleColdAirZonesWithSlope  Module = "cold_air_zones_with_slope"
	ModuleAirFlowDirection       Module = "air_flow_direction"
	ModuleSlope                  Module = "slope"
)

// AllModules lists every user-selectable module in execution-friendly order.
var AllModules = []Module{
	ModuleLandSurfaceTemperature,
	ModuleVegetationIndices,
	ModuleColdAirZones,
	ModuleSlope,
	ModuleAirFlowDirection,
	ModuleColdAirZonesWithSlope,
}

// moduleAliases maps short forms and German operator names to canonical
// module names.
var moduleAliases = map[string]Module{
	"lst":                  ModuleLandSurfaceTemperature,
	"veg":                  ModuleVegetationIndices,
	"cold":                 ModuleColdAirZones,
	"cold_slope":           ModuleColdAirZonesWithSlope,
	"flow":                 ModuleAirFlowDirection,
	"hitzeinseln":          ModuleLandSurfaceTemperature,
	"vegetation":           ModuleVegetationIndices,
	"kaltluft":             ModuleColdAirZones,
	"kaltluft_hangneigung": ModuleColdAirZonesWithSlope,
	"flussrichtung":        ModuleAirFlowDirection,
	"hangneigung":          ModuleSlope,
}

// Valid reports whether m names a known module.
func (m Module) Valid() bool {
	for _, known := range AllModules {
		if m == known {
			return true
		}
	}
	return false
}

// Dependencies returns the modules whose artifacts m consumes. The
// orchestrator runs them first and propagates their failures.
func (m Module) Dependencies() []Module {
	if m == ModuleColdAirZonesWithSlope {
		return []Module{ModuleColdAirZones, ModuleSlope}
	}
	return nil
}

// ResolveModules parses a comma-separated user module list, resolving
// aliases and expanding "all"/"alle". Duplicates are removed; the result is
// sorted for reproducible run order.
func ResolveModules(input string) ([]Module, error) {
	seen := map[Module]bool{}
	for _, raw := range strings.Split(input, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == "all" || name == "alle" {
			for _, m := range AllModules {
				seen[m] = true
			}
			continue
		}
		m, ok := moduleAliases[name]
		if !ok {
			m = Module(name)
		}
		if !m.Valid() {
			return nil, fmt.Errorf("unknown module %q (available: %s)", raw, availableModuleNames())
		}
		seen[m] = true
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("no modules selected")
	}

	out := make([]Module, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func availableModuleNames() string {
	names := make([]string, 0, len(AllModules)+len(moduleAliases))
	for _, m := range AllModules {
		names = append(names, string(m))
	}
	for alias := range moduleAliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
