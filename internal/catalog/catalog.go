// Package catalog maintains a SQLite index of recorded sessions and
// analysis runs so the UI can list and search without walking the session
// tree. The filesystem session directory is always the source of truth;
// every write here is best-effort secondary, and callers log rather than
// fail a run on a catalog error.
package catalog

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Catalog wraps the SQLite handle. Safe for concurrent use; SQLite
// serializes writers and the WAL journal keeps readers off their backs.
type Catalog struct {
	*sql.DB
}

// Open opens (creating if needed) the catalog database at path and brings
// its schema up to date.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening %s: %w", path, err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	c := &Catalog{DB: db}
	sub, err := migrationsSub()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := c.MigrateUp(sub); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// migrationsSub strips the migrations/ prefix off the embedded filesystem
// so the iofs source driver sees the .sql files at its root.
func migrationsSub() (fs.FS, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("catalog: embedded migrations: %w", err)
	}
	return sub, nil
}

// applyPragmas applies essential SQLite PRAGMAs for performance and
// concurrency, applied to every opened database.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("catalog: executing %q: %w", pragma, err)
		}
	}
	return nil
}
