package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"

	// pure-Go SQLite driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

// FileExt is the extension of data source files in the root directory.
const FileExt = ".gpkg"

// Handle is an open data source. A handle is used by one goroutine at a time.
type Handle interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// Opener opens data source files.
type Opener interface {
	Open(ctx context.Context, path string) (Handle, error)
}

// catalog tables every tile-pyramid GeoPackage must carry
var requiredTables = []string{
	"gpkg_contents",
	"gpkg_pctile_matrix",
	"gpkg_pctile_matrix_set",
}

// SQLiteOpener opens GeoPackage files read-only.
type SQLiteOpener struct{}

func (SQLiteOpener) Open(ctx context.Context, path string) (Handle, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	dsn := (&url.URL{Scheme: "file", OmitHost: true, Path: path, RawQuery: "mode=ro"}).String()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection: the handle is never used concurrently
	db.SetMaxOpenConns(1)

	if err := verifyCatalog(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("verify %s: %w", path, err)
	}
	return db, nil
}

func verifyCatalog(ctx context.Context, db *sql.DB) error {
	for _, name := range requiredTables {
		var n int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?",
			name,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("check table %s: %w", name, err)
		}
		if n == 0 {
			return fmt.Errorf("table %s missing", name)
		}
	}
	return nil
}
