package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/district-poi/internal/dedup"
	"github.com/sells-group/district-poi/internal/model"
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pois (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	lon             REAL NOT NULL,
	lat             REAL NOT NULL,
	rubrics         TEXT NOT NULL DEFAULT '[]',
	source_category TEXT NOT NULL DEFAULT '',
	source_class    TEXT NOT NULL DEFAULT '',
	region_id       TEXT NOT NULL DEFAULT '',
	collected_at    DATETIME NOT NULL,
	subcategory     TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	cluster         INTEGER
);

CREATE TABLE IF NOT EXISTS harvest_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	mode        TEXT NOT NULL DEFAULT '',
	queries     TEXT NOT NULL DEFAULT '[]',
	stats       TEXT NOT NULL DEFAULT '{}',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pois_category ON pois(category);
CREATE INDEX IF NOT EXISTS idx_harvest_runs_started_at ON harvest_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM pois ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load ids")
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: load ids iterate")
}

// Append inserts records whose identifiers are not stored yet. Existing rows
// are left untouched.
func (s *SQLiteStore) Append(ctx context.Context, pois []model.POI) (int, error) {
	pois = dedup.Unique(pois)
	if len(pois) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pois (`+poiColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare append")
	}
	defer stmt.Close() //nolint:errcheck

	var inserted int64
	for _, p := range pois {
		args, err := poiArgs(p)
		if err != nil {
			return 0, err
		}
		res, err := stmt.ExecContext(ctx, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert poi %s", p.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit append")
	}
	return int(inserted), nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.POI, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+poiColumns+` FROM pois ORDER BY rowid`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pois")
	}
	defer rows.Close() //nolint:errcheck

	var pois []model.POI
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, err
		}
		pois = append(pois, p)
	}
	return pois, eris.Wrap(rows.Err(), "sqlite: list pois iterate")
}

func (s *SQLiteStore) UpdateCategories(ctx context.Context, pois []model.POI) error {
	return s.updateEach(ctx, `UPDATE pois SET subcategory = ?, category = ? WHERE id = ?`, pois,
		func(p model.POI) []any { return []any{p.Subcategory, p.Category, p.ID} })
}

func (s *SQLiteStore) UpdateClusters(ctx context.Context, pois []model.POI) error {
	return s.updateEach(ctx, `UPDATE pois SET cluster = ? WHERE id = ?`, pois,
		func(p model.POI) []any { return []any{clusterArg(p.Cluster), p.ID} })
}

func (s *SQLiteStore) updateEach(ctx context.Context, query string, pois []model.POI, args func(model.POI) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare update")
	}
	defer stmt.Close() //nolint:errcheck

	for _, p := range pois {
		res, err := stmt.ExecContext(ctx, args(p)...)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update poi %s", p.ID)
		}
		if err := checkRowsAffected(res, "poi", p.ID); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit update")
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN category <> '' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN cluster IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN cluster = -1 THEN 1 ELSE 0 END), 0)
		FROM pois`,
	).Scan(&st.Total, &st.Categorized, &st.Clustered, &st.Noise)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: poi stats")
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM harvest_runs`).Scan(&st.Runs); err != nil {
		return nil, eris.Wrap(err, "sqlite: run stats")
	}

	var last time.Time
	err = s.db.QueryRowContext(ctx, `SELECT collected_at FROM pois ORDER BY collected_at DESC LIMIT 1`).Scan(&last)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, eris.Wrap(err, "sqlite: last collected")
	default:
		last = last.UTC()
		st.LastCollected = &last
	}
	return &st, nil
}

// Reset deletes every stored POI. It is the only way records leave the store.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pois`)
	return eris.Wrap(err, "sqlite: reset")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, mode string, queries []string) (*model.HarvestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal queries")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO harvest_runs (id, status, mode, queries, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), mode, string(queriesJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.HarvestRun{
		ID:        id,
		Status:    model.RunStatusRunning,
		Mode:      mode,
		Queries:   queries,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.HarvestRun) error {
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	now := time.Now().UTC()
	run.FinishedAt = &now

	res, err := s.db.ExecContext(ctx,
		`UPDATE harvest_runs SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), string(statsJSON), now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.HarvestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, mode, queries, stats, started_at, finished_at
		 FROM harvest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.HarvestRun
	for rows.Next() {
		var (
			id, status, mode, queries, stats string
			started                          time.Time
			finished                         *time.Time
		)
		if err := rows.Scan(&id, &status, &mode, &queries, &stats, &started, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r, err := scanRunFields(id, status, mode, queries, stats, started, finished)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
