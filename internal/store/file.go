package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/roach88/filemock/internal/record"
)

// readTable loads and decodes the persistence file.
func readTable(path string) (map[string]record.Storage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return record.DecodeTable(data)
}

// writeTable encodes the table and replaces the persistence file atomically.
func writeTable(path string, table map[string]record.Storage) error {
	data, err := record.EncodeTable(table)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path. The data directory is created if missing. On any
// error the temp file is removed and path is left as it was.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
