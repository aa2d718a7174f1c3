package engine

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// dialect captures the small amount of per-database variation the
// default engine needs: how to list table names and how the database's
// own query builder would quote an identifier, so AllTableNames returns
// names in the same textual form the scanner will see in query text.
type dialect struct {
	name           string
	allTablesQuery string
	quote          func(name string) string
}

var mysqlDialect = dialect{
	name:           "mysql",
	allTablesQuery: "SELECT TABLE_NAME FROM information_schema.tables WHERE table_schema = DATABASE()",
	quote:          func(name string) string { return "`" + name + "`" },
}

var sqliteDialect = dialect{
	name:           "sqlite",
	allTablesQuery: "SELECT name FROM sqlite_master WHERE type = 'table'",
	quote:          func(name string) string { return `"` + name + `"` },
}

// SQLEngine is the default Engine implementation, backed by database/sql
// through sqlx for row decoding. New flavours plug in by implementing
// Engine directly; this type only needs to vary by dialect.
type SQLEngine struct {
	db      *sqlx.DB
	dialect dialect
}

// AllTableNames lists every table in the connected schema, each already
// wrapped in this dialect's identifier quote.
func (e *SQLEngine) AllTableNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := e.db.SelectContext(ctx, &names, e.dialect.allTablesQuery); err != nil {
		return nil, fmt.Errorf("%s: list tables: %w", e.dialect.name, err)
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = e.dialect.quote(n)
	}
	return quoted, nil
}

// Execute runs a single non-transactional write.
func (e *SQLEngine) Execute(ctx context.Context, stmt Statement) error {
	_, err := e.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	return err
}

// BeginTx opens a native transaction.
func (e *SQLEngine) BeginTx(ctx context.Context) (Txn, error) {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTxn{tx: tx}, nil
}

// Query runs a read and decodes every row into a generic map, leaving
// struct projection entirely to the caller.
func (e *SQLEngine) Query(ctx context.Context, stmt Statement) ([]Row, error) {
	rows, err := e.db.QueryxContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return nil, err
		}
		out = append(out, Row(m))
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (e *SQLEngine) Close() error {
	return e.db.Close()
}

type sqlTxn struct {
	tx *sqlx.Tx
}

func (t *sqlTxn) Execute(ctx context.Context, stmt Statement) error {
	_, err := t.tx.ExecContext(ctx, stmt.SQL, stmt.Args...)
	return err
}

func (t *sqlTxn) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

func (t *sqlTxn) Rollback(ctx context.Context) error {
	return t.tx.Rollback()
}
