package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanclimate/pipeline/internal/domain"
)

func TestParseDate(t *testing.T) {
	d, err := domain.ParseDate("2024-07-15")
	require.NoError(t, err)
	assert.Equal(t, domain.Date{Year: 2024, Month: time.July, Day: 15}, d)

	_, err = domain.ParseDate("15.07.2024")
	assert.Error(t, err)
}

func TestParseCompactDate(t *testing.T) {
	d, err := domain.ParseCompactDate("20240715")
	require.NoError(t, err)
	assert.Equal(t, "2024-07-15", d.String())

	_, err = domain.ParseCompactDate("2024-07-15")
	assert.Error(t, err)
}

func TestDate_Before(t *testing.T) {
	earlier := domain.Date{Year: 2024, Month: time.June, Day: 30}
	later := domain.Date{Year: 2024, Month: time.July, Day: 1}

	assert.True(t, earlier.Before(later))
	assert.False(t, later.Before(earlier))
	assert.False(t, later.Before(later))
}

func TestDate_AggregationKeys(t *testing.T) {
	d := domain.Date{Year: 2024, Month: time.July, Day: 15}
	assert.Equal(t, "2024-07", d.MonthKey())
	assert.Equal(t, "2024", d.YearKey())
}

func TestTimeRange_ContainsIsInclusive(t *testing.T) {
	tr := domain.TimeRange{
		Start: domain.Date{Year: 2024, Month: time.January, Day: 1},
		End:   domain.Date{Year: 2024, Month: time.December, Day: 31},
	}

	assert.True(t, tr.Contains(tr.Start))
	assert.True(t, tr.Contains(tr.End))
	assert.True(t, tr.Contains(domain.Date{Year: 2024, Month: time.June, Day: 15}))
	assert.False(t, tr.Contains(domain.Date{Year: 2023, Month: time.December, Day: 31}))
	assert.False(t, tr.Contains(domain.Date{Year: 2025, Month: time.January, Day: 1}))
}

func TestTimeRange_Key(t *testing.T) {
	tr := domain.TimeRange{
		Start: domain.Date{Year: 2024, Month: time.January, Day: 1},
		End:   domain.Date{Year: 2024, Month: time.July, Day: 31},
	}
	assert.Equal(t, "20240101-20240731", tr.Key())
}
