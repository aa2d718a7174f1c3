package engine

import (
	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLEngine opens a MySQL-backed Engine from a standard go-sql-driver DSN.
func NewMySQLEngine(dsn string) (*SQLEngine, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLEngine{db: db, dialect: mysqlDialect}, nil
}
