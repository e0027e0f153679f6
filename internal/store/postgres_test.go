package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/microarea-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresStore(mock, nil), mock
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func ptr(f float64) *float64 { return &f }

var resultRowColumns = []string{"latitude", "longitude", "method", "confidence", "note", "match_precision", "formatted_address", "attempts"}

func TestPostgresStore_Merge_NewAddress(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	incoming := result(model.MethodPrimary, model.ConfidenceHigh, -10.9, -37.1)
	incoming.Attempts = []model.Attempt{{Layer: model.MethodPrimary, Outcome: model.OutcomeFound, Point: incoming.Point}}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT latitude, longitude, method, confidence.* FROM resolutions WHERE .* FOR UPDATE`).
		WithArgs("UBS Guajará", "3", "Rua 12 de Fevereiro, 45, Guajará").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO "resolutions" .* ON CONFLICT \("unit", "micro_area", "address"\) DO UPDATE SET .* WHERE "resolutions"."confidence" <= EXCLUDED."confidence"`).
		WithArgs(anyArgs(len(resolutionColumns))...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCopyFrom(pgx.Identifier{"resolution_attempts"}, attemptColumns).WillReturnResult(1)
	mock.ExpectCommit()

	out, err := s.Merge(context.Background(), testRecord, incoming, "run-1")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.True(t, out.Replaced)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Merge_KeepsStronger(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	incoming := model.ResolutionResult{
		Method:   model.MethodManual,
		Attempts: []model.Attempt{{Layer: model.MethodPrimary, Outcome: model.OutcomeUnavailable}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT latitude, longitude .* FOR UPDATE`).
		WithArgs(anyArgs(3)...).
		WillReturnRows(pgxmock.NewRows(resultRowColumns).
			AddRow(ptr(-10.9), ptr(-37.1), "primary_service", 3, "google:rooftop", "rooftop", "Rua 12 de Fevereiro, 45", []byte(`[]`)))
	mock.ExpectCopyFrom(pgx.Identifier{"resolution_attempts"}, attemptColumns).WillReturnResult(1)
	mock.ExpectCommit()

	out, err := s.Merge(context.Background(), testRecord, incoming, "run-2")
	require.NoError(t, err)
	assert.False(t, out.Replaced)
	assert.Equal(t, model.ConfidenceHigh, out.Previous)
	assert.Equal(t, model.MethodPrimary, out.Stored.Method)
	require.NotNil(t, out.Stored.Point)
	assert.InDelta(t, -10.9, out.Stored.Point.Lat, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Merge_UpsertFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(anyArgs(3)...).WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO "resolutions"`).
		WithArgs(anyArgs(len(resolutionColumns))...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := s.Merge(context.Background(), testRecord, result(model.MethodPrimary, model.ConfidenceHigh, -10.9, -37.1), "run-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: upsert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT unit, micro_area, address, .* FROM resolutions WHERE unit = \$1`).
		WithArgs("U", "1", "Rua X").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.Get(context.Background(), model.Key{Unit: "U", MicroArea: "1", Address: "Rua X"})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	cols := append([]string{"unit", "micro_area", "address", "unit_location", "unit_location_url"}, resultRowColumns...)
	cols = append(cols, "run_id", "updated_at")
	mock.ExpectQuery(`SELECT unit, micro_area, address, .* FROM resolutions ORDER BY unit, micro_area, address`).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("U", "1", "Rua A", "", "", nil, nil, "manual", 0, "not_found", "", "", []byte(`[]`), "r1", now).
			AddRow("U", "2", "Rua B", "", "", ptr(-10.85), ptr(-37.05), "neighborhood_fallback", 2, "fallback:São Braz", "neighborhood", "", []byte(`[{"layer":"primary_service","outcome":"not_found"}]`), "r1", now))

	recs, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].Result.Point)
	assert.Equal(t, model.ConfidenceNone, recs[0].Result.Confidence)
	require.NotNil(t, recs[1].Result.Point)
	assert.Equal(t, model.ConfidenceMedium, recs[1].Result.Confidence)
	require.Len(t, recs[1].Result.Attempts, 1)
	assert.Equal(t, model.OutcomeNotFound, recs[1].Result.Attempts[0].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAndFinishRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO runs`).
		WithArgs(pgxmock.AnyArg(), "addresses.csv", "running", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE runs SET status = \$1`).
		WithArgs("complete", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	run, err := s.CreateRun(context.Background(), "addresses.csv")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(context.Background(), run.ID, RunStatusComplete, RunStats{Total: 1}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE runs`).
		WithArgs(anyArgs(4)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), "nope", RunStatusComplete, RunStats{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runs`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertSQL(t *testing.T) {
	sql, err := postgresUpsert()
	require.NoError(t, err)
	assert.Contains(t, sql, `"match_precision" = EXCLUDED."match_precision"`)
	assert.NotContains(t, sql, `"unit" = EXCLUDED`)
}
