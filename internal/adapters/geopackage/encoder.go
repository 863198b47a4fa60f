// Package geopackage writes feature collections as OGC GeoPackage files.
package geopackage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver

	"github.com/paulmach/orb"

	"github.com/jobrunner/osmclip/internal/domain"
)

// Format is the encoder format name.
const Format = "gpkg"

// SRSWGS84 is the spatial reference of every exported geometry.
const SRSWGS84 = 4326

// DefaultTable is the feature table of exported packages.
const DefaultTable = "osm_features"

// Encoder writes feature collections as single-layer GeoPackages.
// It implements output.FeatureEncoder.
type Encoder struct {
	table   string
	tempDir string
	now     func() time.Time
}

// NewEncoder creates a GeoPackage encoder. Scratch files are created in
// tempDir, or the system temp directory when empty.
func NewEncoder(table, tempDir string) *Encoder {
	if table == "" {
		table = DefaultTable
	}
	return &Encoder{
		table:   table,
		tempDir: tempDir,
		now:     time.Now,
	}
}

// Format implements output.FeatureEncoder.
func (e *Encoder) Format() string { return Format }

// Extension implements output.FeatureEncoder.
func (e *Encoder) Extension() string { return ".gpkg" }

// ContentType implements output.FeatureEncoder.
func (e *Encoder) ContentType() string { return "application/geopackage+sqlite3" }

// Encode implements output.FeatureEncoder. The package is built in a scratch
// file which is read back and removed.
func (e *Encoder) Encode(ctx context.Context, fc *domain.FeatureCollection) ([]byte, error) {
	dir, err := os.MkdirTemp(e.tempDir, "osmclip-gpkg-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	path := filepath.Join(dir, "export.gpkg")
	if err := e.write(ctx, path, fc); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //#nosec G304 -- path created above
	if err != nil {
		return nil, fmt.Errorf("reading geopackage: %w", err)
	}
	return data, nil
}

func (e *Encoder) write(ctx context.Context, path string, fc *domain.FeatureCollection) error {
	db, err := openDB(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	for _, pragma := range []string{
		"PRAGMA application_id = 1196444487", // "GPKG"
		"PRAGMA user_version = 10300",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("initializing geopackage: %w", err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := e.createSchema(ctx, tx); err != nil {
		return err
	}

	bound, err := e.insertFeatures(ctx, tx, fc)
	if err != nil {
		return err
	}

	if err := e.registerContents(ctx, tx, bound); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing geopackage: %w", err)
	}
	return nil
}

// openDB opens a new SQLite database file.
func openDB(ctx context.Context, path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=DELETE", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (e *Encoder) createSchema(ctx context.Context, tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE gpkg_spatial_ref_sys (
			srs_name TEXT NOT NULL,
			srs_id INTEGER PRIMARY KEY,
			organization TEXT NOT NULL,
			organization_coordsys_id INTEGER NOT NULL,
			definition TEXT NOT NULL,
			description TEXT
		)`,
		`INSERT INTO gpkg_spatial_ref_sys VALUES
			('Undefined cartesian SRS', -1, 'NONE', -1, 'undefined', 'undefined cartesian coordinate reference system'),
			('Undefined geographic SRS', 0, 'NONE', 0, 'undefined', 'undefined geographic coordinate reference system'),
			('WGS 84 geodetic', 4326, 'EPSG', 4326, '` + wgs84WKT + `', 'longitude/latitude coordinates in decimal degrees on the WGS 84 spheroid')`,
		`CREATE TABLE gpkg_contents (
			table_name TEXT NOT NULL PRIMARY KEY,
			data_type TEXT NOT NULL,
			identifier TEXT UNIQUE,
			description TEXT DEFAULT '',
			last_change DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			min_x DOUBLE, min_y DOUBLE, max_x DOUBLE, max_y DOUBLE,
			srs_id INTEGER,
			CONSTRAINT fk_gc_r_srs_id FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		`CREATE TABLE gpkg_geometry_columns (
			table_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			geometry_type_name TEXT NOT NULL,
			srs_id INTEGER NOT NULL,
			z TINYINT NOT NULL,
			m TINYINT NOT NULL,
			CONSTRAINT pk_geom_cols PRIMARY KEY (table_name, column_name),
			CONSTRAINT fk_gc_tn FOREIGN KEY (table_name) REFERENCES gpkg_contents(table_name),
			CONSTRAINT fk_gc_srs FOREIGN KEY (srs_id) REFERENCES gpkg_spatial_ref_sys(srs_id)
		)`,
		fmt.Sprintf(`CREATE TABLE %s (
			fid INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
			geom GEOMETRY,
			osm_id TEXT NOT NULL,
			osm_type TEXT NOT NULL,
			name TEXT,
			tags TEXT
		)`, quoteIdent(e.table)), //#nosec G201 -- table name from configuration
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating geopackage schema: %w", err)
		}
	}
	return nil
}

func (e *Encoder) insertFeatures(ctx context.Context, tx *sql.Tx, fc *domain.FeatureCollection) (orb.Bound, error) {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (geom, osm_id, osm_type, name, tags) VALUES (?, ?, ?, ?, ?)",
		quoteIdent(e.table),
	)) //#nosec G201 -- table name from configuration
	if err != nil {
		return orb.Bound{}, fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	var (
		bound orb.Bound
		first = true
	)
	for i := range fc.Features {
		f := &fc.Features[i]

		blob, err := encodeGeometry(f.Geometry, SRSWGS84)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("encoding %s: %w", f.ID, err)
		}
		tags, err := json.Marshal(f.Tags)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("encoding tags of %s: %w", f.ID, err)
		}

		var name sql.NullString
		if n := f.Name(); n != "" {
			name = sql.NullString{String: n, Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, blob, f.ID, osmType(f.ID), name, string(tags)); err != nil {
			return orb.Bound{}, fmt.Errorf("inserting %s: %w", f.ID, err)
		}

		if first {
			bound = f.Geometry.Bound()
			first = false
		} else {
			bound = bound.Union(f.Geometry.Bound())
		}
	}
	return bound, nil
}

func (e *Encoder) registerContents(ctx context.Context, tx *sql.Tx, bound orb.Bound) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents (table_name, data_type, identifier, description, last_change,
			min_x, min_y, max_x, max_y, srs_id)
		VALUES (?, 'features', ?, 'OpenStreetMap extract', ?, ?, ?, ?, ?, ?)`,
		e.table, e.table, e.now().UTC().Format("2006-01-02T15:04:05.000Z"),
		bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1], SRSWGS84,
	)
	if err != nil {
		return fmt.Errorf("registering contents: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns (table_name, column_name, geometry_type_name, srs_id, z, m)
		VALUES (?, 'geom', 'GEOMETRY', ?, 0, 0)`,
		e.table, SRSWGS84,
	)
	if err != nil {
		return fmt.Errorf("registering geometry column: %w", err)
	}
	return nil
}

// osmType returns the element kind of an identity such as "way/42".
func osmType(id string) string {
	if i := strings.IndexByte(id, '/'); i > 0 {
		return id[:i]
	}
	return ""
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

const wgs84WKT = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`
