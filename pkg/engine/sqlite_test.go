package engine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomellm/hermes/pkg/engine"
)

func TestSQLiteEngineAllTableNamesAndRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hermes.db")
	eng, err := engine.NewSQLiteEngine(path)
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	require.NoError(t, eng.Execute(ctx, engine.Statement{
		SQL: `CREATE TABLE "items" (id INTEGER PRIMARY KEY, name TEXT)`,
	}))
	require.NoError(t, eng.Execute(ctx, engine.Statement{
		SQL: `CREATE TABLE "tags" (id INTEGER PRIMARY KEY, label TEXT)`,
	}))

	tables, err := eng.AllTableNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, `"items"`)
	assert.Contains(t, tables, `"tags"`)

	require.NoError(t, eng.Execute(ctx, engine.Statement{
		SQL:  `INSERT INTO "items" (name) VALUES (?)`,
		Args: []any{"widget"},
	}))

	rows, err := eng.Query(ctx, engine.Statement{SQL: `SELECT id, name FROM "items"`})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "widget", rows[0]["name"])
}

func TestSQLiteEngineTransactionRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hermes.db")
	eng, err := engine.NewSQLiteEngine(path)
	require.NoError(t, err)
	defer eng.Close()

	ctx := context.Background()
	require.NoError(t, eng.Execute(ctx, engine.Statement{
		SQL: `CREATE TABLE "items" (id INTEGER PRIMARY KEY, name TEXT UNIQUE)`,
	}))
	require.NoError(t, eng.Execute(ctx, engine.Statement{
		SQL:  `INSERT INTO "items" (name) VALUES (?)`,
		Args: []any{"widget"},
	}))

	txn, err := eng.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Execute(ctx, engine.Statement{
		SQL:  `INSERT INTO "items" (name) VALUES (?)`,
		Args: []any{"gadget"},
	}))
	err = txn.Execute(ctx, engine.Statement{
		SQL:  `INSERT INTO "items" (name) VALUES (?)`, // duplicate -> violates UNIQUE
		Args: []any{"widget"},
	})
	assert.Error(t, err)
	require.NoError(t, txn.Rollback(ctx))

	rows, err := eng.Query(ctx, engine.Statement{SQL: `SELECT name FROM "items"`})
	require.NoError(t, err)
	assert.Len(t, rows, 1, "rollback must discard the gadget insert too")
}
