// Package dayselect filters candidate acquisition dates using per-scene
// cloud coverage and matched ground weather observations.
package dayselect

import (
	"sort"

	"github.com/urbanclimate/pipeline/internal/domain"
)

// Thresholds is the per-module selection criteria pair. A nil criterion is
// not applied; each module configures the pair it documents (max wind speed
// for the cold-air-relevant modules, min temperature for the heat-island
// module).
type Thresholds struct {
	// MaxCloudCoverage is the inclusive upper bound on scene cloud cover.
	MaxCloudCoverage float64
	// MaxWindSpeed keeps only calm days (observation wind speed <= bound).
	MaxWindSpeed *float64
	// MinTemperature keeps only hot days (observation temperature >= bound).
	MinTemperature *float64

	// Historical switches the eligible range from the recent window to
	// everything at or after HistoricalCutoff.
	Historical       bool
	HistoricalCutoff domain.Date
	// RecentWindowDays bounds the non-historical range, counted back from
	// the current date. Zero disables the recency bound.
	RecentWindowDays int
}

// earliestEligible computes the start of the eligible date range.
func (t Thresholds) earliestEligible() domain.Date {
	if t.Historical {
		return t.HistoricalCutoff
	}
	if t.RecentWindowDays <= 0 {
		return domain.Date{}
	}
	return domain.DateOf(domain.Clock.Now().AddDate(0, 0, -t.RecentWindowDays))
}

// SelectDays returns the ascending list of dates that pass all configured
// criteria. A scene date with no matching weather observation is excluded:
// guessing the missing observation would bias the thermal modules. An empty
// result is valid and means "no eligible days", not an error.
func SelectDays(scenes []domain.SceneRecord, weather []domain.WeatherObservation, t Thresholds) []domain.Date {
	byDate := observationsByDate(weather)
	earliest := t.earliestEligible()

	selected := map[domain.Date]bool{}
	for _, scene := range scenes {
		if scene.CloudCoverage > t.MaxCloudCoverage {
			continue
		}
		if !earliest.IsZero() && scene.Date.Before(earliest) {
			continue
		}
		obs, ok := byDate[scene.Date]
		if !ok {
			continue
		}
		if t.MaxWindSpeed != nil && obs.WindSpeed > *t.MaxWindSpeed {
			continue
		}
		if t.MinTemperature != nil && obs.Temperature < *t.MinTemperature {
			continue
		}
		selected[scene.Date] = true
	}

	dates := make([]domain.Date, 0, len(selected))
	for d := range selected {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// observationsByDate collapses the station-day records to one observation
// per calendar date. When several stations report the same date their means
// are averaged, which keeps the day filter independent of station count.
func observationsByDate(weather []domain.WeatherObservation) map[domain.Date]domain.WeatherObservation {
	sums := map[domain.Date]struct {
		temp, wind float64
		n          int
	}{}
	for _, obs := range weather {
		s := sums[obs.Date]
		s.temp += obs.Temperature
		s.wind += obs.WindSpeed
		s.n++
		sums[obs.Date] = s
	}

	out := make(map[domain.Date]domain.WeatherObservation, len(sums))
	for date, s := range sums {
		out[date] = domain.WeatherObservation{
			Date:        date,
			Temperature: s.temp / float64(s.n),
			WindSpeed:   s.wind / float64(s.n),
		}
	}
	return out
}
