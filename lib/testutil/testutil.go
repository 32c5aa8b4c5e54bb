package testutil

import (
	"database/sql"
	"gamesync-backend/lib/sqliteutil"
	"testing"
)

type DBParams struct {
	Schema string
	// if unspecified, it will use `:memory:`
	Path string
}

// OpenDB opens a sqlite database with the schema applied, it is closed when the
// test ends.
func OpenDB(t testing.TB, params DBParams) *sql.DB {
	path := params.Path
	if path == "" {
		path = ":memory:"
	}
	db, err := sqliteutil.OpenWithSchema(path, params.Schema)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
