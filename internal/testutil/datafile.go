package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/filemock/internal/record"
)

// WriteDataFile writes table as a persistence file at dir/name and returns
// its path. The directory is created if needed.
func WriteDataFile(dir, name string, table map[string]record.Storage) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	data, err := record.EncodeTable(table)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadDataFile decodes the persistence file at path.
func ReadDataFile(path string) (map[string]record.Storage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return record.DecodeTable(data)
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
