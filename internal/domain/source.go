package domain

import "time"

// SourceRecord describes one successfully cached raw download. Records are
// created by the source cache on first fetch and never mutated; an override
// re-fetch atomically replaces the whole record.
type SourceRecord struct {
	Provider    string    `json:"provider"`
	Region      string    `json:"region"`
	Range       TimeRange `json:"range"`
	Path        string    `json:"path"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// SceneRecord is one satellite overpass over a region: its capture date,
// cloud coverage and the band set the catalog declares for it. The engine
// never assumes bands beyond what the metadata lists.
type SceneRecord struct {
	ID            string   `json:"id"`
	Date          Date     `json:"date"`
	CloudCoverage float64  `json:"cloud_coverage"` // percent, 0-100
	Bands         []string `json:"bands"`
	SourcePath    string   `json:"source_path,omitempty"`
}

// HasBands reports whether the scene declares every requested band.
func (s SceneRecord) HasBands(names []string) bool {
	for _, want := range names {
		found := false
		for _, b := range s.Bands {
			if b == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// WeatherObservation is one station-day of ground weather data.
type WeatherObservation struct {
	StationID   string  `json:"station_id"`
	Date        Date    `json:"date"`
	Temperature float64 `json:"temperature"` // °C
	WindSpeed   float64 `json:"wind_speed"`  // m/s
}
