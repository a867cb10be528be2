package store

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/filemock/internal/config"
	"github.com/roach88/filemock/internal/record"
)

// Store is the in-memory record table plus its load/save lifecycle.
type Store struct {
	mu    sync.RWMutex
	table map[string]record.Storage
	ready bool

	path        string
	saveOnClose bool
	logger      *slog.Logger

	loaded    *Outcome
	closed    *Outcome
	closeOnce sync.Once
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open creates a store for cfg and starts loading the persistence file in the
// background. The load result is delivered through Loaded().
func Open(cfg config.Config, opts ...Option) *Store {
	s := &Store{
		table:       make(map[string]record.Storage),
		path:        cfg.Path(),
		saveOnClose: cfg.SaveOnClose,
		logger:      slog.Default(),
		loaded:      newOutcome(),
		closed:      newOutcome(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("store", cfg.Name, "instance", cfg.InstanceID, "path", s.path)

	go s.load()
	return s
}

func (s *Store) load() {
	s.logger.Debug("loading table")

	table, err := readTable(s.path)
	if err != nil {
		loadErr := &Error{Code: CodeLoadFailure, Op: "load", Path: s.path, Err: err}
		s.logger.Error("load failed, continuing with empty table", "error", err)
		s.loaded.resolve(loadErr)
		return
	}

	s.mu.Lock()
	s.table = table
	s.ready = true
	s.mu.Unlock()

	s.logger.Info("table loaded", "keys", len(table))
	s.loaded.resolve(nil)
}

// Loaded resolves when the initial load finishes: nil once the table is
// populated, or an *Error with CodeLoadFailure.
func (s *Store) Loaded() *Outcome {
	return s.loaded
}

// Ready reports whether the initial load succeeded.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Path returns the persistence file location.
func (s *Store) Path() string {
	return s.path
}

// Set flattens w and stores it under key, replacing any previous record.
func (s *Store) Set(key string, w record.Wire) error {
	if key == "" {
		return invalidKey("set", key)
	}
	stored, err := record.ToStorage(w)
	if err != nil {
		return &Error{Code: CodeMalformedRecord, Op: "set", Key: key, Err: err}
	}

	s.mu.Lock()
	s.table[key] = stored
	s.mu.Unlock()

	s.logger.Debug("set", "key", key, "version", w.Version)
	return nil
}

// Get returns the wire record stored under key, or nil if there is none.
// Absence is not an error. The returned record is a copy.
func (s *Store) Get(key string) (*record.Wire, error) {
	if key == "" {
		return nil, invalidKey("get", key)
	}

	s.mu.RLock()
	stored, ok := s.table[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	w, err := record.FromStorage(stored)
	if err != nil {
		return nil, &Error{Code: CodeMalformedRecord, Op: "get", Key: key, Err: err}
	}
	return &w, nil
}

// Delete removes key. Deleting a missing key is a no-op.
func (s *Store) Delete(key string) error {
	if key == "" {
		return invalidKey("delete", key)
	}

	s.mu.Lock()
	delete(s.table, key)
	s.mu.Unlock()

	s.logger.Debug("delete", "key", key)
	return nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

// Keys returns all keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.table))
	for k := range s.table {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Snapshot returns a deep copy of the table in storage shape.
func (s *Store) Snapshot() map[string]record.Storage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return record.CloneTable(s.table)
}

// Close shuts the store down. When persistence-on-close is enabled the table
// is written to the persistence file. The outcome resolves after the initial
// load has settled and any save has completed: nil on success, or an *Error
// with CodeSaveFailure. Calling Close again returns the same outcome.
func (s *Store) Close() *Outcome {
	s.closeOnce.Do(func() {
		go s.shutdown(s.saveOnClose)
	})
	return s.closed
}

// Discard shuts the store down without writing the persistence file,
// whatever the configuration. Once Close has been called it returns that
// outcome instead.
func (s *Store) Discard() *Outcome {
	s.closeOnce.Do(func() {
		go s.shutdown(false)
	})
	return s.closed
}

func (s *Store) shutdown(save bool) {
	<-s.loaded.Done()

	if !save {
		s.logger.Info("closed without saving")
		s.closed.resolve(nil)
		return
	}

	snapshot := s.Snapshot()
	if err := writeTable(s.path, snapshot); err != nil {
		saveErr := &Error{Code: CodeSaveFailure, Op: "save", Path: s.path, Err: err}
		s.logger.Error("save failed", "error", err)
		s.closed.resolve(saveErr)
		return
	}

	s.logger.Info("table saved", "keys", len(snapshot))
	s.closed.resolve(nil)
}
