// Package export writes a record table into a SQLite database for ad-hoc
// querying.
//
// Each record becomes one row in the records table. The data column holds the
// storage-shape JSON, reserved field included, so SQLite's JSON functions
// can reach application fields directly:
//
//	SELECT key FROM records WHERE json_extract(data, '$.name') = 'elasticsearch';
package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/filemock/internal/record"
)

const schemaSQL = `
CREATE TABLE records (
	key     TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	data    TEXT NOT NULL
)`

// row is one encoded record.
type row struct {
	key     string
	version int64
	data    string
}

// Export replaces the database at path with the contents of table and
// returns the number of rows written. Every record is encoded before anything
// is touched, and the database is built next to path and renamed over it, so
// on error an existing database is left as it was. Rows are inserted in key
// order inside a single transaction.
func Export(ctx context.Context, path string, table map[string]record.Storage) (int, error) {
	rows, err := encodeRows(table)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp database: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer removeDatabase(tmpPath)

	if err := build(ctx, tmpPath, rows); err != nil {
		return 0, err
	}

	// A stale WAL next to path would be replayed into the new database.
	for _, p := range []string{path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("failed to replace database: %w", err)
	}
	return len(rows), nil
}

func encodeRows(table map[string]record.Storage) ([]row, error) {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	rows := make([]row, 0, len(keys))
	for _, key := range keys {
		s := table[key]
		version, err := s.Version()
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", key, err)
		}
		data, err := record.MarshalStable(s)
		if err != nil {
			return nil, fmt.Errorf("export %q: %w", key, err)
		}
		rows = append(rows, row{key: key, version: version, data: string(data)})
	}
	return rows, nil
}

// build writes rows into a fresh database at path.
func build(ctx context.Context, path string, rows []row) error {
	db, err := open(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (key, version, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.key, r.version, r.data); err != nil {
			return fmt.Errorf("export %q: %w", r.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// removeDatabase deletes a database file and its sidecars, ignoring errors.
func removeDatabase(path string) {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}

// open creates the database and applies the connection settings.
func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return db, nil
}
