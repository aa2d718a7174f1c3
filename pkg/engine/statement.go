package engine

import "github.com/Masterminds/squirrel"

// FromSquirrel adapts the output of an external squirrel query builder
// into this library's opaque Statement, without this package taking any
// part in building the SQL itself.
func FromSquirrel(b squirrel.Sqlizer) (Statement, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql, Args: args}, nil
}
