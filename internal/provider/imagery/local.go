package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/urbanclimate/pipeline/internal/bandalgebra"
	"github.com/urbanclimate/pipeline/internal/domain"
	"github.com/urbanclimate/pipeline/internal/raster"
)

// sceneIndex is the scenes.json layout of a local scene library: one entry
// per overpass, with band names mapped to grid files relative to the
// library directory.
type sceneIndex struct {
	Scenes []sceneEntry `json:"scenes"`
}

type sceneEntry struct {
	ID            string            `json:"id"`
	Date          string            `json:"date"` // YYYY-MM-DD
	CloudCoverage float64           `json:"cloud_coverage"`
	Bands         map[string]string `json:"bands"`
}

// LocalCatalog implements Catalog against a scene library on local
// storage, kept in sync by an external download tool. The library holds a
// scenes.json index plus one grid file per scene band.
type LocalCatalog struct {
	dir string
}

// NewLocalCatalog opens the scene library at dir.
func NewLocalCatalog(dir string) (*LocalCatalog, error) {
	if _, err := os.Stat(filepath.Join(dir, "scenes.json")); err != nil {
		return nil, fmt.Errorf("scene library %s: %w", dir, err)
	}
	return &LocalCatalog{dir: dir}, nil
}

// SearchScenes lists the library scenes inside the date range whose cloud
// coverage does not exceed maxCloud, in ascending date order. The library
// is assembled per region, so the region only scopes logging upstream.
func (c *LocalCatalog) SearchScenes(_ context.Context, _ domain.Region, tr domain.TimeRange, maxCloud float64) ([]domain.SceneRecord, error) {
	idx, err := c.readIndex()
	if err != nil {
		return nil, err
	}

	var scenes []domain.SceneRecord
	for _, e := range idx.Scenes {
		date, err := domain.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", e.ID, err)
		}
		if e.CloudCoverage > maxCloud || !tr.Contains(date) {
			continue
		}
		bands := make([]string, 0, len(e.Bands))
		for name := range e.Bands {
			bands = append(bands, name)
		}
		sort.Strings(bands)
		scenes = append(scenes, domain.SceneRecord{
			ID:            e.ID,
			Date:          date,
			CloudCoverage: e.CloudCoverage,
			Bands:         bands,
			SourcePath:    c.dir,
		})
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Date.Before(scenes[j].Date) })
	return scenes, nil
}

// FetchBands loads the requested band grids of one scene.
func (c *LocalCatalog) FetchBands(_ context.Context, scene domain.SceneRecord, bands []string) (bandalgebra.BandSet, error) {
	idx, err := c.readIndex()
	if err != nil {
		return nil, err
	}
	var entry *sceneEntry
	for i := range idx.Scenes {
		if idx.Scenes[i].ID == scene.ID {
			entry = &idx.Scenes[i]
			break
		}
	}
	if entry == nil {
		return nil, fmt.Errorf("scene %s not in library index", scene.ID)
	}

	set := make(bandalgebra.BandSet, len(bands))
	for _, name := range bands {
		rel, ok := entry.Bands[name]
		if !ok {
			return nil, fmt.Errorf("scene %s has no band %s", scene.ID, name)
		}
		g, err := raster.ReadGridFile(filepath.Join(c.dir, rel))
		if err != nil {
			return nil, fmt.Errorf("band %s of scene %s: %w", name, scene.ID, err)
		}
		set[name] = g
	}
	return set, nil
}

func (c *LocalCatalog) readIndex() (sceneIndex, error) {
	data, err := os.ReadFile(filepath.Join(c.dir, "scenes.json"))
	if err != nil {
		return sceneIndex{}, fmt.Errorf("read scene index: %w", err)
	}
	var idx sceneIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return sceneIndex{}, fmt.Errorf("decode scene index: %w", err)
	}
	return idx, nil
}
