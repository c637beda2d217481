package store

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crimemap/internal/boundary"
	"github.com/sells-group/crimemap/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id       TEXT PRIMARY KEY,
	year     INTEGER NOT NULL UNIQUE,
	skipped  INTEGER NOT NULL DEFAULT 0,
	built_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS incidents (
	snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	idx         INTEGER NOT NULL,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	category    TEXT NOT NULL,
	year        INTEGER NOT NULL,
	region      TEXT NOT NULL DEFAULT '',
	bucket      TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, idx)
);

CREATE TABLE IF NOT EXISTS regions (
	set_id   TEXT NOT NULL,
	position INTEGER NOT NULL,
	name     TEXT NOT NULL,
	geom     BLOB NOT NULL,
	PRIMARY KEY (set_id, position)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_year ON snapshots(year);
CREATE INDEX IF NOT EXISTS idx_incidents_snapshot ON incidents(snapshot_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces any stored snapshot for the same year.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.YearSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save snapshot")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE year = ?", snap.Year); err != nil {
		return eris.Wrap(err, "sqlite: delete prior snapshot")
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO snapshots (id, year, skipped, built_at) VALUES (?, ?, ?, ?)",
		snap.ID, snap.Year, snap.Skipped, snap.BuiltAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert snapshot")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO incidents (snapshot_id, idx, latitude, longitude, category, year, region, bucket)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare incident insert")
	}
	defer func() { _ = stmt.Close() }()

	for i, inc := range snap.Incidents {
		if _, err := stmt.ExecContext(ctx,
			snap.ID, i, inc.Latitude, inc.Longitude, inc.Category, inc.Year, inc.Region, string(inc.Bucket),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert incident %d", i)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit snapshot")
}

// GetSnapshot loads the stored snapshot for a year, or (nil, nil) when the
// year has never been persisted.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, year int) (*model.YearSnapshot, error) {
	var snap model.YearSnapshot
	var builtAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, year, skipped, built_at FROM snapshots WHERE year = ?", year,
	).Scan(&snap.ID, &snap.Year, &snap.Skipped, &builtAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get snapshot")
	}
	if ts, perr := time.Parse(time.RFC3339Nano, builtAt); perr == nil {
		snap.BuiltAt = ts
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, latitude, longitude, category, year, region, bucket
		FROM incidents WHERE snapshot_id = ? ORDER BY idx`, snap.ID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query incidents")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var inc model.Incident
		var bucket string
		if err := rows.Scan(&inc.ID, &inc.Latitude, &inc.Longitude, &inc.Category, &inc.Year, &inc.Region, &bucket); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan incident")
		}
		inc.Bucket = model.Bucket(bucket)
		snap.Incidents = append(snap.Incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate incidents")
	}

	snap.Categories = distinctCategories(snap.Incidents)
	return &snap, nil
}

func (s *SQLiteStore) ListYears(ctx context.Context) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT year FROM snapshots ORDER BY year")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list years")
	}
	defer func() { _ = rows.Close() }()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan year")
		}
		years = append(years, y)
	}
	return years, eris.Wrap(rows.Err(), "sqlite: iterate years")
}

func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, year int) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE year = ?", year)
	return eris.Wrap(err, "sqlite: delete snapshot")
}

// SaveRegions stores a region set's geometry as EWKB, replacing any prior
// rows for the same set identity.
func (s *SQLiteStore) SaveRegions(ctx context.Context, setID string, regions []boundary.Region) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save regions")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM regions WHERE set_id = ?", setID); err != nil {
		return eris.Wrap(err, "sqlite: delete prior regions")
	}

	for i, r := range regions {
		data, err := ewkb.Marshal(r.Geometry, ewkb.NDR)
		if err != nil {
			return eris.Wrapf(err, "sqlite: encode region %s", r.Name)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO regions (set_id, position, name, geom) VALUES (?, ?, ?, ?)",
			setID, i, r.Name, data,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert region %s", r.Name)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit regions")
}

// GetRegions loads a stored region set in its original order, or (nil, nil)
// when the identity is unknown.
func (s *SQLiteStore) GetRegions(ctx context.Context, setID string) ([]boundary.Region, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, geom FROM regions WHERE set_id = ? ORDER BY position", setID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query regions")
	}
	defer func() { _ = rows.Close() }()

	var regions []boundary.Region
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan region")
		}
		g, err := ewkb.Unmarshal(data)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode region %s", name)
		}
		mp, ok := g.(*geom.MultiPolygon)
		if !ok {
			return nil, eris.Errorf("sqlite: region %s is not a multipolygon", name)
		}
		regions = append(regions, boundary.Region{Name: name, Geometry: mp})
	}
	return regions, eris.Wrap(rows.Err(), "sqlite: iterate regions")
}

// distinctCategories mirrors the pipeline's category derivation for loaded
// snapshots without importing the pipeline package.
func distinctCategories(incidents []model.Incident) []string {
	seen := make(map[string]struct{})
	for _, inc := range incidents {
		if inc.Category != "" {
			seen[inc.Category] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
