package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/district-poi/internal/db"
	"github.com/sells-group/district-poi/internal/dedup"
	"github.com/sells-group/district-poi/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pois (
	seq             BIGSERIAL,
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	lon             DOUBLE PRECISION NOT NULL,
	lat             DOUBLE PRECISION NOT NULL,
	rubrics         JSONB NOT NULL DEFAULT '[]',
	source_category TEXT NOT NULL DEFAULT '',
	source_class    TEXT NOT NULL DEFAULT '',
	region_id       TEXT NOT NULL DEFAULT '',
	collected_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	subcategory     TEXT NOT NULL DEFAULT '',
	category        TEXT NOT NULL DEFAULT '',
	cluster         INTEGER
);

CREATE TABLE IF NOT EXISTS harvest_runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL DEFAULT 'running',
	mode        TEXT NOT NULL DEFAULT '',
	queries     JSONB NOT NULL DEFAULT '[]',
	stats       JSONB NOT NULL DEFAULT '{}',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pois_seq ON pois(seq);
CREATE INDEX IF NOT EXISTS idx_pois_category ON pois(category);
CREATE INDEX IF NOT EXISTS idx_harvest_runs_started_at ON harvest_runs(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM pois ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: load ids iterate")
}

// Append stages records with COPY and inserts only unseen identifiers.
func (s *PostgresStore) Append(ctx context.Context, pois []model.POI) (int, error) {
	pois = dedup.Unique(pois)
	rows := make([][]any, 0, len(pois))
	for _, p := range pois {
		args, err := poiArgs(p)
		if err != nil {
			return 0, err
		}
		rows = append(rows, args)
	}

	n, err := db.BulkInsertNew(ctx, s.pool, db.InsertConfig{
		Table:        "pois",
		Columns:      strings.Split(strings.ReplaceAll(poiColumns, " ", ""), ","),
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: append pois")
	}
	return int(n), nil
}

func (s *PostgresStore) All(ctx context.Context) ([]model.POI, error) {
	query := `SELECT ` + strings.Replace(poiColumns, "rubrics", "rubrics::text", 1) + ` FROM pois ORDER BY seq`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pois")
	}
	defer rows.Close()

	var pois []model.POI
	for rows.Next() {
		p, err := scanPOI(rows)
		if err != nil {
			return nil, err
		}
		pois = append(pois, p)
	}
	return pois, eris.Wrap(rows.Err(), "postgres: list pois iterate")
}

func (s *PostgresStore) UpdateCategories(ctx context.Context, pois []model.POI) error {
	return s.updateEach(ctx, `UPDATE pois SET subcategory = $1, category = $2 WHERE id = $3`, pois,
		func(p model.POI) []any { return []any{p.Subcategory, p.Category, p.ID} })
}

func (s *PostgresStore) UpdateClusters(ctx context.Context, pois []model.POI) error {
	return s.updateEach(ctx, `UPDATE pois SET cluster = $1 WHERE id = $2`, pois,
		func(p model.POI) []any { return []any{clusterArg(p.Cluster), p.ID} })
}

func (s *PostgresStore) updateEach(ctx context.Context, query string, pois []model.POI, args func(model.POI) []any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, p := range pois {
		tag, err := tx.Exec(ctx, query, args(p)...)
		if err != nil {
			return eris.Wrapf(err, "postgres: update poi %s", p.ID)
		}
		if tag.RowsAffected() == 0 {
			return eris.Errorf("poi not found: %s", p.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit update")
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE category <> ''),
			COUNT(*) FILTER (WHERE cluster IS NOT NULL),
			COUNT(*) FILTER (WHERE cluster = -1),
			(SELECT COUNT(*) FROM harvest_runs),
			MAX(collected_at)
		FROM pois`,
	).Scan(&st.Total, &st.Categorized, &st.Clustered, &st.Noise, &st.Runs, &st.LastCollected)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: stats")
	}
	return &st, nil
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE pois`)
	return eris.Wrap(err, "postgres: reset")
}

func (s *PostgresStore) CreateRun(ctx context.Context, mode string, queries []string) (*model.HarvestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queriesJSON, err := json.Marshal(queries)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal queries")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO harvest_runs (id, status, mode, queries, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.RunStatusRunning), mode, string(queriesJSON), now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.HarvestRun{
		ID:        id,
		Status:    model.RunStatusRunning,
		Mode:      mode,
		Queries:   queries,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.HarvestRun) error {
	statsJSON, err := json.Marshal(run.Stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}
	now := time.Now().UTC()
	run.FinishedAt = &now

	tag, err := s.pool.Exec(ctx,
		`UPDATE harvest_runs SET status = $1, stats = $2, finished_at = $3 WHERE id = $4`,
		string(run.Status), string(statsJSON), now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.HarvestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, mode, queries::text, stats::text, started_at, finished_at
		 FROM harvest_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.HarvestRun
	for rows.Next() {
		var (
			id, status, mode, queries, stats string
			started                          time.Time
			finished                         *time.Time
		)
		if err := rows.Scan(&id, &status, &mode, &queries, &stats, &started, &finished); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r, err := scanRunFields(id, status, mode, queries, stats, started, finished)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
