package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/crimemap/internal/boundary"
	"github.com/sells-group/crimemap/internal/db"
	"github.com/sells-group/crimemap/internal/model"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres wraps an existing pool. The caller owns connection setup so
// tests can substitute pgxmock.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS snapshots (
	id       UUID PRIMARY KEY,
	year     INTEGER NOT NULL UNIQUE,
	skipped  INTEGER NOT NULL DEFAULT 0,
	built_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS incidents (
	snapshot_id UUID NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
	idx         INTEGER NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
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
	geom     BYTEA NOT NULL,
	PRIMARY KEY (set_id, position)
);

CREATE INDEX IF NOT EXISTS idx_incidents_snapshot ON incidents(snapshot_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveSnapshot replaces any stored snapshot for the same year. Incidents
// are bulk-loaded via COPY.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.YearSnapshot) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM snapshots WHERE year = $1", snap.Year); err != nil {
		return eris.Wrap(err, "postgres: delete prior snapshot")
	}

	_, err := s.pool.Exec(ctx,
		"INSERT INTO snapshots (id, year, skipped, built_at) VALUES ($1, $2, $3, $4)",
		snap.ID, snap.Year, snap.Skipped, snap.BuiltAt,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: insert snapshot")
	}

	rows := make([][]any, len(snap.Incidents))
	for i, inc := range snap.Incidents {
		rows[i] = []any{snap.ID, i, inc.Latitude, inc.Longitude, inc.Category, inc.Year, inc.Region, string(inc.Bucket)}
	}
	_, err = db.CopyFrom(ctx, s.pool, "incidents",
		[]string{"snapshot_id", "idx", "latitude", "longitude", "category", "year", "region", "bucket"},
		rows,
	)
	return err
}

// GetSnapshot loads the stored snapshot for a year, or (nil, nil) when the
// year has never been persisted.
func (s *PostgresStore) GetSnapshot(ctx context.Context, year int) (*model.YearSnapshot, error) {
	var snap model.YearSnapshot
	err := s.pool.QueryRow(ctx,
		"SELECT id, year, skipped, built_at FROM snapshots WHERE year = $1", year,
	).Scan(&snap.ID, &snap.Year, &snap.Skipped, &snap.BuiltAt)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get snapshot")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT idx, latitude, longitude, category, year, region, bucket
		FROM incidents WHERE snapshot_id = $1 ORDER BY idx`, snap.ID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query incidents")
	}
	defer rows.Close()

	for rows.Next() {
		var inc model.Incident
		var bucket string
		if err := rows.Scan(&inc.ID, &inc.Latitude, &inc.Longitude, &inc.Category, &inc.Year, &inc.Region, &bucket); err != nil {
			return nil, eris.Wrap(err, "postgres: scan incident")
		}
		inc.Bucket = model.Bucket(bucket)
		snap.Incidents = append(snap.Incidents, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate incidents")
	}

	snap.Categories = distinctCategories(snap.Incidents)
	return &snap, nil
}

func (s *PostgresStore) ListYears(ctx context.Context) ([]int, error) {
	rows, err := s.pool.Query(ctx, "SELECT year FROM snapshots ORDER BY year")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list years")
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, eris.Wrap(err, "postgres: scan year")
		}
		years = append(years, y)
	}
	return years, eris.Wrap(rows.Err(), "postgres: iterate years")
}

func (s *PostgresStore) DeleteSnapshot(ctx context.Context, year int) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM snapshots WHERE year = $1", year)
	return eris.Wrap(err, "postgres: delete snapshot")
}

// SaveRegions stores a region set's geometry as EWKB, replacing any prior
// rows for the same set identity.
func (s *PostgresStore) SaveRegions(ctx context.Context, setID string, regions []boundary.Region) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM regions WHERE set_id = $1", setID); err != nil {
		return eris.Wrap(err, "postgres: delete prior regions")
	}

	rows := make([][]any, 0, len(regions))
	for i, r := range regions {
		data, err := ewkb.Marshal(r.Geometry, ewkb.NDR)
		if err != nil {
			return eris.Wrapf(err, "postgres: encode region %s", r.Name)
		}
		rows = append(rows, []any{setID, i, r.Name, data})
	}

	_, err := db.CopyFrom(ctx, s.pool, "regions",
		[]string{"set_id", "position", "name", "geom"}, rows)
	return err
}

// GetRegions loads a stored region set in its original order, or (nil, nil)
// when the identity is unknown.
func (s *PostgresStore) GetRegions(ctx context.Context, setID string) ([]boundary.Region, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT name, geom FROM regions WHERE set_id = $1 ORDER BY position", setID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query regions")
	}
	defer rows.Close()

	var regions []boundary.Region
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan region")
		}
		g, err := ewkb.Unmarshal(data)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: decode region %s", name)
		}
		mp, ok := g.(*geom.MultiPolygon)
		if !ok {
			return nil, eris.Errorf("postgres: region %s is not a multipolygon", name)
		}
		regions = append(regions, boundary.Region{Name: name, Geometry: mp})
	}
	return regions, eris.Wrap(rows.Err(), "postgres: iterate regions")
}
