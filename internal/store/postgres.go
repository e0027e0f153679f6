package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/db"
	"github.com/sells-group/microarea-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
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
	return newPostgresStore(pool, pool.Close), nil
}

func newPostgresStore(pool db.Pool, closeFn func()) *PostgresStore {
	return &PostgresStore{
		pool:    pool,
		closeFn: closeFn,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       JSONB,
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS resolutions (
	unit              TEXT NOT NULL,
	micro_area        TEXT NOT NULL,
	address           TEXT NOT NULL,
	unit_location     TEXT NOT NULL DEFAULT '',
	unit_location_url TEXT NOT NULL DEFAULT '',
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	method            TEXT NOT NULL,
	confidence        INTEGER NOT NULL DEFAULT 0,
	note              TEXT NOT NULL DEFAULT '',
	match_precision   TEXT NOT NULL DEFAULT '',
	formatted_address TEXT NOT NULL DEFAULT '',
	attempts          JSONB NOT NULL DEFAULT '[]',
	run_id            TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (unit, micro_area, address)
);

CREATE TABLE IF NOT EXISTS resolution_attempts (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL,
	unit       TEXT NOT NULL,
	micro_area TEXT NOT NULL,
	address    TEXT NOT NULL,
	layer      TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	latitude   DOUBLE PRECISION,
	longitude  DOUBLE PRECISION,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_resolutions_confidence ON resolutions(confidence);
CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON resolution_attempts(run_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// postgresUpsert is the monotonic insert used by Merge.
func postgresUpsert() (string, error) {
	return db.UpsertSQL(db.UpsertConfig{
		Table:        "resolutions",
		Columns:      resolutionColumns,
		ConflictKeys: []string{"unit", "micro_area", "address"},
		Where:        `"resolutions"."confidence" <= EXCLUDED."confidence"`,
	})
}

func (s *PostgresStore) Merge(ctx context.Context, rec model.AddressRecord, incoming model.ResolutionResult, runID string) (MergeOutcome, error) {
	key := rec.Key()
	if !key.Valid() {
		return MergeOutcome{}, eris.Errorf("postgres: invalid key %s", key)
	}
	upsert, err := postgresUpsert()
	if err != nil {
		return MergeOutcome{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return MergeOutcome{}, eris.Wrap(err, "postgres: begin merge")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := scanResult(tx.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM resolutions WHERE unit = $1 AND micro_area = $2 AND address = $3 FOR UPDATE`,
		key.Unit, key.MicroArea, key.Address,
	))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return MergeOutcome{}, eris.Wrapf(err, "postgres: read %s", key)
	}

	out := MergeOutcome{Created: existing == nil}
	if existing != nil {
		out.Previous = existing.Confidence
	}
	out.Stored, out.Replaced = Merge(existing, incoming)

	now := s.now()
	if out.Replaced {
		args, err := resolutionArgs(rec, incoming, runID, now)
		if err != nil {
			return MergeOutcome{}, err
		}
		if _, err := tx.Exec(ctx, upsert, args...); err != nil {
			return MergeOutcome{}, eris.Wrapf(err, "postgres: upsert %s", key)
		}
	}
	if _, err := db.CopyFrom(ctx, tx, "resolution_attempts", attemptColumns, attemptRows(key, incoming.Attempts, runID, now)); err != nil {
		return MergeOutcome{}, eris.Wrapf(err, "postgres: record attempts %s", key)
	}

	if err := tx.Commit(ctx); err != nil {
		return MergeOutcome{}, eris.Wrap(err, "postgres: commit merge")
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, key model.Key) (*model.ConsolidatedRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM resolutions WHERE unit = $1 AND micro_area = $2 AND address = $3`,
		key.Unit, key.MicroArea, key.Address,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s", key)
	}
	return rec, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.ConsolidatedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM resolutions ORDER BY unit, micro_area, address`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list resolutions")
	}
	defer rows.Close()

	var out []model.ConsolidatedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list resolutions iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string) (*Run, error) {
	r := &Run{ID: uuid.New().String(), Source: source, Status: RunStatusRunning, StartedAt: s.now()}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, source, status, started_at) VALUES ($1, $2, $3, $4)`,
		r.ID, r.Source, string(r.Status), r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return r, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status RunStatus, stats RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, stats = $2, finished_at = $3 WHERE id = $4`,
		string(status), statsJSON, s.now(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, status, stats, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r      Run
			status string
			stats  []byte
		)
		if err := rows.Scan(&r.ID, &r.Source, &status, &stats, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = RunStatus(status)
		if len(stats) > 0 {
			if err := json.Unmarshal(stats, &r.Stats); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal run stats")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
