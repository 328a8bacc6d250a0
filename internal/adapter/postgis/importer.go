// Package postgis imports vector artifacts into a PostGIS table for the
// map-serving side of the system.
package postgis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/paulmach/orb/geojson"

	"github.com/urbanclimate/pipeline/internal/artifact"
)

const createTableStmt = `
CREATE TABLE IF NOT EXISTS %s (
	id       BIGSERIAL PRIMARY KEY,
	region   TEXT NOT NULL,
	module   TEXT NOT NULL,
	name     TEXT NOT NULL,
	class    TEXT,
	geom     GEOMETRY(GEOMETRY, 4326) NOT NULL,
	UNIQUE (region, module, name, class)
)`

const upsertStmt = `
INSERT INTO %s (region, module, name, class, geom)
VALUES ($1, $2, $3, $4, ST_SetSRID(ST_GeomFromGeoJSON($5), 4326))
ON CONFLICT (region, module, name, class)
DO UPDATE SET geom = EXCLUDED.geom`

// Importer writes vector artifacts into PostGIS.
type Importer struct {
	db     *sqlx.DB
	table  string
	logger *slog.Logger
}

// NewImporter connects to dsn and ensures the target table exists.
func NewImporter(dsn, table string, logger *slog.Logger) (*Importer, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgis: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf(createTableStmt, table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return &Importer{db: db, table: table, logger: logger}, nil
}

// ImportFeatures upserts every feature of the collection under the
// artifact key. All features of one artifact go in a single transaction.
func (im *Importer) ImportFeatures(ctx context.Context, key artifact.Key, fc *geojson.FeatureCollection) error {
	tx, err := im.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt := fmt.Sprintf(upsertStmt, im.table)
	for _, f := range fc.Features {
		geom, err := geojson.NewGeometry(f.Geometry).MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode feature geometry: %w", err)
		}
		class, _ := f.Properties["class"].(string)
		if _, err := tx.ExecContext(ctx, stmt, key.Region, string(key.Module), key.Name, class, string(geom)); err != nil {
			return fmt.Errorf("import feature into %s: %w", im.table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	im.logger.Info("vector artifact imported",
		"key", key.String(),
		"features", len(fc.Features))
	return nil
}

func (im *Importer) Close() error {
	return im.db.Close()
}
