package engine

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"
)

// NewSQLiteEngine opens a pure-Go, embeddable Engine at path — a
// zero-setup option for the demo and for tests that want a real engine
// instead of the in-memory fake.
func NewSQLiteEngine(path string) (*SQLEngine, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLEngine{db: db, dialect: sqliteDialect}, nil
}
