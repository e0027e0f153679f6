package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertSQL(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "resolutions",
		Columns:      []string{"unit", "address", "confidence"},
		ConflictKeys: []string{"unit", "address"},
		Where:        `"resolutions"."confidence" <= EXCLUDED."confidence"`,
	})
	require.NoError(t, err)
	assert.Equal(t,
		`INSERT INTO "resolutions" ("unit", "address", "confidence") VALUES ($1, $2, $3) `+
			`ON CONFLICT ("unit", "address") DO UPDATE SET "confidence" = EXCLUDED."confidence" `+
			`WHERE "resolutions"."confidence" <= EXCLUDED."confidence"`,
		sql)
}

func TestUpsertSQL_SchemaAndExplicitColumns(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{
		Table:        "geo.runs",
		Columns:      []string{"id", "status", "stats"},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"status"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `INSERT INTO "geo"."runs"`)
	assert.Contains(t, sql, `DO UPDATE SET "status" = EXCLUDED."status"`)
	assert.NotContains(t, sql, `"stats" = EXCLUDED`)
	assert.NotContains(t, sql, "WHERE")
}

func TestUpsertSQL_OnlyKeysDoesNothing(t *testing.T) {
	sql, err := UpsertSQL(UpsertConfig{Table: "t", Columns: []string{"id"}, ConflictKeys: []string{"id"}})
	require.NoError(t, err)
	assert.Contains(t, sql, "DO NOTHING")
}

func TestUpsertSQL_Invalid(t *testing.T) {
	_, err := UpsertSQL(UpsertConfig{Columns: []string{"a"}, ConflictKeys: []string{"a"}})
	assert.ErrorContains(t, err, "no table")

	_, err = UpsertSQL(UpsertConfig{Table: "t", ConflictKeys: []string{"a"}})
	assert.ErrorContains(t, err, "no columns")

	_, err = UpsertSQL(UpsertConfig{Table: "t", Columns: []string{"a"}})
	assert.ErrorContains(t, err, "no conflict keys")
}
