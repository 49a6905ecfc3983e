// Package migrations embeds the SQL schema for the run history backends.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Postgres returns the migrations applied by `cdastats migrate up`.
func Postgres() fs.FS {
	sub, _ := fs.Sub(files, "postgres")
	return sub
}

// SQLite returns the migrations applied when a local history file is opened.
func SQLite() fs.FS {
	sub, _ := fs.Sub(files, "sqlite")
	return sub
}
