package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/microarea-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// WAL allows one writer; keep a single connection so merges serialize.
	db.SetMaxOpenConns(1)
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
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	stats       TEXT,
	started_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS resolutions (
	unit              TEXT NOT NULL,
	micro_area        TEXT NOT NULL,
	address           TEXT NOT NULL,
	unit_location     TEXT NOT NULL DEFAULT '',
	unit_location_url TEXT NOT NULL DEFAULT '',
	latitude          REAL,
	longitude         REAL,
	method            TEXT NOT NULL,
	confidence        INTEGER NOT NULL DEFAULT 0,
	note              TEXT NOT NULL DEFAULT '',
	match_precision   TEXT NOT NULL DEFAULT '',
	formatted_address TEXT NOT NULL DEFAULT '',
	attempts          TEXT NOT NULL DEFAULT '[]',
	run_id            TEXT NOT NULL DEFAULT '',
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (unit, micro_area, address)
);

CREATE TABLE IF NOT EXISTS resolution_attempts (
	run_id     TEXT NOT NULL,
	unit       TEXT NOT NULL,
	micro_area TEXT NOT NULL,
	address    TEXT NOT NULL,
	layer      TEXT NOT NULL,
	outcome    TEXT NOT NULL,
	latitude   REAL,
	longitude  REAL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_resolutions_confidence ON resolutions(confidence);
CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON resolution_attempts(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// sqliteUpsert keeps the stored row unless the incoming confidence is at
// least as high, mirroring Merge inside the database.
var sqliteUpsert = `INSERT INTO resolutions (` + strings.Join(resolutionColumns, ", ") + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (unit, micro_area, address) DO UPDATE SET
	unit_location = excluded.unit_location,
	unit_location_url = excluded.unit_location_url,
	latitude = excluded.latitude,
	longitude = excluded.longitude,
	method = excluded.method,
	confidence = excluded.confidence,
	note = excluded.note,
	match_precision = excluded.match_precision,
	formatted_address = excluded.formatted_address,
	attempts = excluded.attempts,
	run_id = excluded.run_id,
	updated_at = excluded.updated_at
WHERE resolutions.confidence <= excluded.confidence`

var sqliteInsertAttempt = `INSERT INTO resolution_attempts (` + strings.Join(attemptColumns, ", ") + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (s *SQLiteStore) Merge(ctx context.Context, rec model.AddressRecord, incoming model.ResolutionResult, runID string) (MergeOutcome, error) {
	key := rec.Key()
	if !key.Valid() {
		return MergeOutcome{}, eris.Errorf("sqlite: invalid key %s", key)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MergeOutcome{}, eris.Wrap(err, "sqlite: begin merge")
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanResult(tx.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM resolutions WHERE unit = ? AND micro_area = ? AND address = ?`,
		key.Unit, key.MicroArea, key.Address,
	))
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return MergeOutcome{}, eris.Wrapf(err, "sqlite: read %s", key)
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
		if _, err := tx.ExecContext(ctx, sqliteUpsert, args...); err != nil {
			return MergeOutcome{}, eris.Wrapf(err, "sqlite: upsert %s", key)
		}
	}
	for _, row := range attemptRows(key, incoming.Attempts, runID, now) {
		if _, err := tx.ExecContext(ctx, sqliteInsertAttempt, row...); err != nil {
			return MergeOutcome{}, eris.Wrapf(err, "sqlite: insert attempt %s", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return MergeOutcome{}, eris.Wrap(err, "sqlite: commit merge")
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key model.Key) (*model.ConsolidatedRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM resolutions WHERE unit = ? AND micro_area = ? AND address = ?`,
		key.Unit, key.MicroArea, key.Address,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s", key)
	}
	return rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]model.ConsolidatedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM resolutions ORDER BY unit, micro_area, address`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list resolutions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ConsolidatedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolution")
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list resolutions iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string) (*Run, error) {
	r := &Run{ID: uuid.New().String(), Source: source, Status: RunStatusRunning, StartedAt: s.now()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Source, string(r.Status), r.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return r, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus, stats RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, stats = ?, finished_at = ? WHERE id = ?`,
		string(status), string(statsJSON), s.now(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, status, stats, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			status   string
			stats    sql.NullString
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Source, &status, &stats, &r.StartedAt, &finished); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = RunStatus(status)
		if stats.Valid {
			if err := json.Unmarshal([]byte(stats.String), &r.Stats); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal run stats")
			}
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
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
