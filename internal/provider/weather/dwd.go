// Package weather fetches and parses daily ground weather observations in
// the DWD "Klima Tag" archive format.
package weather

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/urbanclimate/pipeline/internal/domain"
)

// climateFilePrefix identifies the per-station data file inside the
// station ZIP archive.
const climateFilePrefix = "produkt_klima_tag"

// missingValue is the DWD sentinel for an unreported measurement.
const missingValue = -999

// Downloader fetches one station's climate archive from the DWD open-data
// server. It implements the source cache's Fetcher contract; recent and
// historical archives live under different base URLs and are distinguished
// by the provider name so they cache under separate keys.
type Downloader struct {
	name       string
	baseURL    string
	filename   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDownloader creates a fetcher for the archive at baseURL/filename.
func NewDownloader(name, baseURL, filename string, timeout time.Duration, logger *slog.Logger) *Downloader {
	return &Downloader{
		name:       name,
		baseURL:    baseURL,
		filename:   filename,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (d *Downloader) Name() string { return d.name }

// Fetch streams the station ZIP into w.
func (d *Downloader) Fetch(ctx context.Context, region domain.Region, _ domain.TimeRange, w io.Writer) error {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return fmt.Errorf("parse DWD base URL: %w", err)
	}
	u.Path = path.Join(u.Path, d.filename)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch DWD archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("DWD server returned status %d for %s", resp.StatusCode, u)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return fmt.Errorf("stream DWD archive: %w", err)
	}
	d.logger.Debug("downloaded DWD archive", "region", region.Name, "url", u.String(), "bytes", n)
	return nil
}

// ParseClimateArchive reads the station-day observations from a cached DWD
// ZIP. The payload is a semicolon-separated CSV whose relevant columns are
// STATIONS_ID, MESS_DATUM (YYYYMMDD), FM (daily mean wind speed) and TXK
// (daily maximum temperature). Rows with missing or unparsable wind or
// temperature values are skipped: the day selector must not see guessed
// observations.
func ParseClimateArchive(zipPath string) ([]domain.WeatherObservation, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("open climate archive %s: %w", zipPath, err)
	}
	defer zr.Close()

	var dataFile *zip.File
	for _, f := range zr.File {
		if strings.HasPrefix(path.Base(f.Name), climateFilePrefix) {
			dataFile = f
			break
		}
	}
	if dataFile == nil {
		return nil, fmt.Errorf("no %s* file in archive %s", climateFilePrefix, zipPath)
	}

	rc, err := dataFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dataFile.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dataFile.Name, err)
	}
	return parseClimateCSV(string(data))
}

func parseClimateCSV(content string) ([]domain.WeatherObservation, error) {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("climate file has no data rows")
	}

	cols := map[string]int{}
	for i, name := range strings.Split(lines[0], ";") {
		cols[strings.TrimSpace(name)] = i
	}
	maxCol := 0
	for _, required := range []string{"STATIONS_ID", "MESS_DATUM", "FM", "TXK"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("climate file is missing column %s", required)
		}
		if cols[required] > maxCol {
			maxCol = cols[required]
		}
	}

	var out []domain.WeatherObservation
	for _, line := range lines[1:] {
		fields := strings.Split(line, ";")
		if len(fields) <= maxCol {
			continue
		}

		date, err := domain.ParseCompactDate(strings.TrimSpace(fields[cols["MESS_DATUM"]]))
		if err != nil {
			continue
		}
		wind, okW := parseMeasurement(fields[cols["FM"]])
		temp, okT := parseMeasurement(fields[cols["TXK"]])
		if !okW || !okT {
			continue
		}

		out = append(out, domain.WeatherObservation{
			StationID:   strings.TrimSpace(fields[cols["STATIONS_ID"]]),
			Date:        date,
			Temperature: temp,
			WindSpeed:   wind,
		})
	}
	return out, nil
}

func parseMeasurement(field string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || v == missingValue {
		return 0, false
	}
	return v, true
}
