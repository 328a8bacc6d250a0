// Package artifact persists finished rasters and vector layers under a
// stable, enumerable layout:
//
//	<root>/<region>/<module>/[<bucket>/]<name>
//
// where bucket is empty for one-off artifacts, or one of "timesteps",
// "monthly", "yearly" for time-bucketed ones. Consumers, including the
// publishing adapter, enumerate artifacts by this key without reading
// content. Rasters are stored in the deterministic grid encoding, vectors
// as GeoJSON; every write is temp-file + rename so readers never observe a
// partial artifact.
package artifact

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/paulmach/orb/geojson"

	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/observability"
	"github.com/urbanclimate/pipeline/internal/raster"
)

// Time bucket names.
const (
	BucketTimesteps = "timesteps"
	BucketMonthly   = "monthly"
	BucketYearly    = "yearly"
)

// Key addresses one artifact.
type Key struct {
	Region string
	Module domain.Module
	Bucket string // empty for unbucketed artifacts
	Name   string // filename including extension
}

func (k Key) String() string {
	if k.Bucket == "" {
		return fmt.Sprintf("%s/%s/%s", k.Region, k.Module, k.Name)
	}
	return fmt.Sprintf("%s/%s/%s/%s", k.Region, k.Module, k.Bucket, k.Name)
}

// Store is the on-disk artifact store.
type Store struct {
	root    string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *slog.Logger, metrics *observability.Metrics) *Store {
	return &Store{root: dir, logger: logger, metrics: metrics}
}

// Path returns the absolute path of the artifact.
func (s *Store) Path(k Key) string {
	parts := []string{s.root, k.Region, string(k.Module)}
	if k.Bucket != "" {
		parts = append(parts, k.Bucket)
	}
	parts = append(parts, k.Name)
	return filepath.Join(parts...)
}

// Exists reports whether the artifact has been committed.
func (s *Store) Exists(k Key) bool {
	info, err := os.Stat(s.Path(k))
	return err == nil && !info.IsDir()
}

// WriteRaster commits a raster artifact atomically.
func (s *Store) WriteRaster(k Key, g *raster.Grid) error {
	err := s.writeAtomic(k, func(f *os.File) error {
		return raster.WriteGrid(f, g)
	})
	if err != nil {
		return err
	}
	s.metrics.ArtifactsWritten.WithLabelValues("raster").Inc()
	return nil
}

// ReadRaster loads a raster artifact.
func (s *Store) ReadRaster(k Key) (*raster.Grid, error) {
	g, err := raster.ReadGridFile(s.Path(k))
	if err != nil {
		return nil, fmt.Errorf("read raster artifact %s: %w", k, err)
	}
	return g, nil
}

// WriteVector commits a GeoJSON artifact atomically.
func (s *Store) WriteVector(k Key, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode vector artifact %s: %w", k, err)
	}
	err = s.writeAtomic(k, func(f *os.File) error {
		_, werr := f.Write(data)
		return werr
	})
	if err != nil {
		return err
	}
	s.metrics.ArtifactsWritten.WithLabelValues("vector").Inc()
	return nil
}

// ReadVector loads a GeoJSON artifact.
func (s *Store) ReadVector(k Key) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(s.Path(k))
	if err != nil {
		return nil, fmt.Errorf("read vector artifact %s: %w", k, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode vector artifact %s: %w", k, err)
	}
	return fc, nil
}

// List enumerates the artifact names under (region, module, bucket) in
// sorted order, without reading content. A missing directory is an empty
// listing, not an error.
func (s *Store) List(region string, module domain.Module, bucket string) ([]string, error) {
	dir := filepath.Join(s.root, region, string(module))
	if bucket != "" {
		dir = filepath.Join(dir, bucket)
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RemoveModule deletes every artifact of (region, module). Override
// regenerates module output wholesale; artifacts are never patched in
// place.
func (s *Store) RemoveModule(region string, module domain.Module) error {
	dir := filepath.Join(s.root, region, string(module))
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove artifacts of %s/%s: %w", region, module, err)
	}
	return nil
}

func (s *Store) writeAtomic(k Key, write func(*os.File) error) error {
	dst := s.Path(k)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".artifact-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("commit artifact %s: %w", k, err)
	}
	s.logger.Debug("artifact committed", "key", k.String())
	return nil
}
