// Package aggregate reduces per-date derived rasters into monthly and
// yearly summary rasters.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/raster"
)

// Aggregate groups the input rasters by index and calendar period and
// computes the per-pixel mean over the contributors where the pixel is
// valid. A pixel is nodata in the aggregate only when it is nodata in every
// contributor. Groups with no contributors are omitted. The reduction is
// associative and commutative, so the result is independent of input order.
func Aggregate(rasters []domain.DerivedRaster, kind domain.PeriodKind) ([]domain.AggregateRaster, error) {
	type groupKey struct {
		index  string
		period string
	}
	groups := map[groupKey][]domain.DerivedRaster{}
	for _, r := range rasters {
		var period string
		switch kind {
		case domain.PeriodMonthly:
			period = r.Date.MonthKey()
		case domain.PeriodYearly:
			period = r.Date.YearKey()
		default:
			return nil, fmt.Errorf("unknown period kind %q", kind)
		}
		k := groupKey{index: r.Index, period: period}
		groups[k] = append(groups[k], r)
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].index != keys[j].index {
			return keys[i].index < keys[j].index
		}
		return keys[i].period < keys[j].period
	})

	out := make([]domain.AggregateRaster, 0, len(keys))
	for _, key := range keys {
		members := groups[key]
		mean, err := meanGrid(members)
		if err != nil {
			return nil, fmt.Errorf("index %s period %s: %w", key.index, key.period, err)
		}
		out = append(out, domain.AggregateRaster{
			Module: members[0].Module,
			Index:  key.index,
			Kind:   kind,
			Key:    key.period,
			Grid:   mean,
			Count:  len(members),
		})
	}
	return out, nil
}

func meanGrid(members []domain.DerivedRaster) (*raster.Grid, error) {
	ref := members[0].Grid
	for _, m := range members[1:] {
		if !m.Grid.SameShape(ref) {
			return nil, fmt.Errorf("raster for %s does not share the group's grid shape", m.Date)
		}
	}

	out := raster.NewLike(ref)
	for row := 0; row < ref.Height; row++ {
		for col := 0; col < ref.Width; col++ {
			var sum float64
			var n int
			for _, m := range members {
				if v, ok := m.Grid.At(row, col); ok {
					sum += v
					n++
				}
			}
			if n > 0 {
				out.Set(row, col, sum/float64(n))
			}
		}
	}
	return out, nil
}
