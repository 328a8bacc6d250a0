// Package geoserver publishes finished artifacts as GeoServer layers over
// its REST API.
package geoserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urbanclimate/pipeline/internal/artifact"
)

// Client implements pipeline.Publisher against a GeoServer instance.
type Client struct {
	baseURL    string
	workspace  string
	user       string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a GeoServer REST client publishing into workspace.
func NewClient(baseURL, workspace, user, password string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		workspace: workspace,
		user:      user,
		password:  password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// PublishArtifact uploads the artifact at path as a layer named after its
// key. Vector artifacts become datastores, raster artifacts coverage
// stores. The workspace is created on first use.
func (c *Client) PublishArtifact(ctx context.Context, key artifact.Key, path string) error {
	if err := c.ensureWorkspace(ctx); err != nil {
		return err
	}

	store := layerName(key)
	var u, contentType string
	switch {
	case isVector(key):
		u = fmt.Sprintf("%s/rest/workspaces/%s/datastores/%s/file.geojson", c.baseURL, c.workspace, store)
		contentType = "application/json"
	default:
		u = fmt.Sprintf("%s/rest/workspaces/%s/coveragestores/%s/file.imagemosaic", c.baseURL, c.workspace, store)
		contentType = "application/octet-stream"
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open artifact for publishing: %w", err)
	}
	defer f.Close()

	if err := c.doRequest(ctx, http.MethodPut, u, contentType, f); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	c.logger.Info("layer published", "workspace", c.workspace, "layer", store)
	return nil
}

func (c *Client) ensureWorkspace(ctx context.Context) error {
	u := fmt.Sprintf("%s/rest/workspaces/%s", c.baseURL, c.workspace)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("check workspace: %w", err)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body := bytes.NewBufferString(fmt.Sprintf(`{"workspace":{"name":%q}}`, c.workspace))
	createURL := fmt.Sprintf("%s/rest/workspaces", c.baseURL)
	if err := c.doRequest(ctx, http.MethodPost, createURL, "application/json", body); err != nil {
		return fmt.Errorf("create workspace %s: %w", c.workspace, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, u, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("geoserver request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("geoserver API error: status %d: %s", resp.StatusCode, respBody)
	}
	io.Copy(io.Discard, resp.Body) //nolint:errcheck
	return nil
}

func isVector(key artifact.Key) bool {
	return strings.HasSuffix(key.Name, ".geojson")
}

func layerName(key artifact.Key) string {
	name := strings.TrimSuffix(key.Name, filepath.Ext(key.Name))
	if key.Bucket != "" {
		return fmt.Sprintf("%s_%s_%s_%s", key.Region, key.Module, key.Bucket, name)
	}
	return fmt.Sprintf("%s_%s_%s", key.Region, key.Module, name)
}
