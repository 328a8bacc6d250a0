package weather_test

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/provider/weather"
)

const climateCSV = `STATIONS_ID;MESS_DATUM;QN_3;FX;FM;QN_4;RSK;TXK;TNK
       1443;20240701;   10; 5.3; 1.8;    3; 0.0; 29.4; 15.2
       1443;20240702;   10; 8.1; 3.2;    3; 1.2; 22.1; 14.0
       1443;20240703;   10;-999;-999;    3; 0.0; 25.0; 14.8
       1443;20240704;   10; 4.0; 2.1;    3; 0.0;-999 ; 13.9
       1443;invalid ;   10; 4.0; 2.1;    3; 0.0; 20.0; 13.9
`

func writeArchive(t *testing.T, filename, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tageswerte_KL_01443_akt.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create(filename)
	require.NoError(t, err)
	_, err = io.WriteString(w, content)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

func TestParseClimateArchive(t *testing.T) {
	path := writeArchive(t, "produkt_klima_tag_20230101_20240731_01443.txt", climateCSV)

	obs, err := weather.ParseClimateArchive(path)
	require.NoError(t, err)

	// Rows 3 and 4 carry the -999 missing sentinel, row 5 a broken date.
	require.Len(t, obs, 2)

	assert.Equal(t, "1443", obs[0].StationID)
	assert.Equal(t, domain.Date{Year: 2024, Month: time.July, Day: 1}, obs[0].Date)
	assert.Equal(t, 29.4, obs[0].Temperature)
	assert.Equal(t, 1.8, obs[0].WindSpeed)

	assert.Equal(t, domain.Date{Year: 2024, Month: time.July, Day: 2}, obs[1].Date)
	assert.Equal(t, 3.2, obs[1].WindSpeed)
}

func TestParseClimateArchive_IgnoresMetadataFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	meta, err := zw.Create("Metadaten_Stationsname_01443.txt")
	require.NoError(t, err)
	io.WriteString(meta, "irrelevant") //nolint:errcheck
	data, err := zw.Create("produkt_klima_tag_01443.txt")
	require.NoError(t, err)
	io.WriteString(data, climateCSV) //nolint:errcheck
	require.NoError(t, zw.Close())

	obs, err := weather.ParseClimateArchive(path)
	require.NoError(t, err)
	assert.Len(t, obs, 2)
}

func TestParseClimateArchive_MissingDataFile(t *testing.T) {
	path := writeArchive(t, "Metadaten_only.txt", "nope")

	_, err := weather.ParseClimateArchive(path)
	assert.ErrorContains(t, err, "produkt_klima_tag")
}

func TestParseClimateArchive_ReorderedColumnsWithShortRows(t *testing.T) {
	// Station and date columns after wind and temperature, plus rows
	// truncated before the rightmost required column.
	csv := strings.Join([]string{
		"FM;TXK;STATIONS_ID;MESS_DATUM",
		" 1.8; 29.4;1443;20240701",
		" 3.2; 22.1;1443",
		" 2.1",
		" 2.5; 24.0;1443;20240702",
		"",
	}, "\n")
	path := writeArchive(t, "produkt_klima_tag_x.txt", csv)

	obs, err := weather.ParseClimateArchive(path)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, domain.Date{Year: 2024, Month: time.July, Day: 1}, obs[0].Date)
	assert.Equal(t, domain.Date{Year: 2024, Month: time.July, Day: 2}, obs[1].Date)
}

func TestParseClimateArchive_MissingColumn(t *testing.T) {
	path := writeArchive(t, "produkt_klima_tag_x.txt",
		"STATIONS_ID;MESS_DATUM;TXK\n1443;20240701;29.4\n")

	_, err := weather.ParseClimateArchive(path)
	assert.ErrorContains(t, err, "FM")
}

func TestDownloader_Fetch(t *testing.T) {
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		fmt.Fprint(w, "zip-payload")
	}))
	defer srv.Close()

	d := weather.NewDownloader("dwd_recent", srv.URL+"/climate/daily/kl/recent/",
		"tageswerte_KL_01443_akt.zip", 5*time.Second, slog.Default())
	assert.Equal(t, "dwd_recent", d.Name())

	region := domain.Region{
		Name: "freiburg",
		BBox: domain.BBox{MinLon: 7.6, MinLat: 47.9, MaxLon: 8.0, MaxLat: 48.1},
	}

	var buf strings.Builder
	err := d.Fetch(context.Background(), region, domain.TimeRange{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "zip-payload", buf.String())
	assert.Equal(t, "/climate/daily/kl/recent/tageswerte_KL_01443_akt.zip", requestedPath)
}

func TestDownloader_FetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	d := weather.NewDownloader("dwd_recent", srv.URL, "missing.zip", 5*time.Second, slog.Default())

	region := domain.Region{
		Name: "freiburg",
		BBox: domain.BBox{MinLon: 7.6, MinLat: 47.9, MaxLon: 8.0, MaxLat: 48.1},
	}

	var buf strings.Builder
	err := d.Fetch(context.Background(), region, domain.TimeRange{}, &buf)
	assert.Error(t, err)
}
