package geoserver_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanclimate/pipeline/internal/adapter/geoserver"
	"github.com/urbanclimate/pipeline/internal/artifact"
	"github.com/urbanclimate/pipeline/internal/domain"
)

type recordedRequest struct {
	method string
	path   string
	body   string
}

func newFakeGeoServer(t *testing.T, workspaceExists bool) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "admin", user)
		require.Equal(t, "secret", pass)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		requests = append(requests, recordedRequest{method: r.Method, path: r.URL.Path, body: string(body)})

		if r.Method == http.MethodGet && !workspaceExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func writeArtifactFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPublishVectorArtifact(t *testing.T) {
	srv, requests := newFakeGeoServer(t, true)
	client := geoserver.NewClient(srv.URL, "climate", "admin", "secret", 5*time.Second, slog.Default())
	key := artifact.Key{Region: "freiburg", Module: domain.ModuleColdAirZones, Name: "cold_air_zones.geojson"}
	path := writeArtifactFile(t, key.Name, `{"type":"FeatureCollection","features":[]}`)

	err := client.PublishArtifact(context.Background(), key, path)

	require.NoError(t, err)
	require.Len(t, *requests, 2)
	assert.Equal(t, http.MethodGet, (*requests)[0].method)
	assert.Equal(t, "/rest/workspaces/climate", (*requests)[0].path)
	upload := (*requests)[1]
	assert.Equal(t, http.MethodPut, upload.method)
	assert.Equal(t, "/rest/workspaces/climate/datastores/freiburg_cold_air_zones_cold_air_zones/file.geojson", upload.path)
	assert.Contains(t, upload.body, "FeatureCollection")
}

func TestPublishRasterArtifact(t *testing.T) {
	srv, requests := newFakeGeoServer(t, true)
	client := geoserver.NewClient(srv.URL, "climate", "admin", "secret", 5*time.Second, slog.Default())
	key := artifact.Key{
		Region: "freiburg",
		Module: domain.ModuleVegetationIndices,
		Bucket: artifact.BucketMonthly,
		Name:   "ndvi_2024-07.grid",
	}
	path := writeArtifactFile(t, key.Name, "raster bytes")

	err := client.PublishArtifact(context.Background(), key, path)

	require.NoError(t, err)
	upload := (*requests)[1]
	assert.Equal(t, http.MethodPut, upload.method)
	assert.Equal(t,
		"/rest/workspaces/climate/coveragestores/freiburg_vegetation_indices_monthly_ndvi_2024-07/file.imagemosaic",
		upload.path)
}

func TestPublishCreatesMissingWorkspace(t *testing.T) {
	srv, requests := newFakeGeoServer(t, false)
	client := geoserver.NewClient(srv.URL, "climate", "admin", "secret", 5*time.Second, slog.Default())
	key := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}
	path := writeArtifactFile(t, key.Name, "raster bytes")

	err := client.PublishArtifact(context.Background(), key, path)

	require.NoError(t, err)
	require.Len(t, *requests, 3)
	create := (*requests)[1]
	assert.Equal(t, http.MethodPost, create.method)
	assert.Equal(t, "/rest/workspaces", create.path)
	assert.Contains(t, create.body, `"climate"`)
}

func TestPublishServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	}))
	defer srv.Close()
	client := geoserver.NewClient(srv.URL, "climate", "admin", "secret", 5*time.Second, slog.Default())
	key := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}
	path := writeArtifactFile(t, key.Name, "raster bytes")

	err := client.PublishArtifact(context.Background(), key, path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestPublishMissingFile(t *testing.T) {
	srv, _ := newFakeGeoServer(t, true)
	client := geoserver.NewClient(srv.URL, "climate", "admin", "secret", 5*time.Second, slog.Default())
	key := artifact.Key{Region: "freiburg", Module: domain.ModuleSlope, Name: "slope.grid"}

	err := client.PublishArtifact(context.Background(), key, filepath.Join(t.TempDir(), "absent.grid"))

	assert.Error(t, err)
}
