// Package config resolves connector settings from defaults, an optional YAML
// file and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Defaults applied when nothing else sets a value.
const (
	DefaultName     = "filemock"
	DefaultVersion  = "0.1.0"
	DefaultDataDir  = "./data/"
	DefaultDataFile = "default_data.json"
)

// Environment variables recognized by FromEnv.
const (
	EnvSaveOnClose = "FILE_MOCK_SAVE_DATA_ON_CLOSE"
	EnvDataFile    = "FILE_MOCK_DATA_FILE"
	EnvDataDir     = "FILE_MOCK_DATA_DIR"
	EnvName        = "FILE_MOCK_NAME"
	EnvVersion     = "FILE_MOCK_VERSION"
)

// Config holds the connector configuration.
type Config struct {
	Name        string
	Version     string
	DataDir     string
	DataFile    string
	SaveOnClose bool
	InstanceID  string
}

// fileConfig mirrors Config for YAML decoding. Pointers distinguish unset
// fields from zero values.
type fileConfig struct {
	Name        *string `yaml:"name"`
	Version     *string `yaml:"version"`
	DataDir     *string `yaml:"data_dir"`
	DataFile    *string `yaml:"data_file"`
	SaveOnClose *bool   `yaml:"save_on_close"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Name:     DefaultName,
		Version:  DefaultVersion,
		DataDir:  DefaultDataDir,
		DataFile: DefaultDataFile,
	}
}

// FromEnv layers environment overrides on top of the defaults.
// lookup is usually os.LookupEnv.
func FromEnv(lookup func(string) (string, bool)) Config {
	return Default().ApplyEnv(lookup)
}

// ApplyEnv returns a copy of c with environment overrides applied.
//
// Persistence-on-close is enabled only when EnvSaveOnClose is exactly "true"
// in any letter case. Any other value disables it.
func (c Config) ApplyEnv(lookup func(string) (string, bool)) Config {
	if v, ok := lookup(EnvSaveOnClose); ok {
		c.SaveOnClose = ParseSaveFlag(v)
	}
	if v, ok := lookup(EnvDataFile); ok && v != "" {
		c.DataFile = v
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup(EnvName); ok && v != "" {
		c.Name = v
	}
	if v, ok := lookup(EnvVersion); ok && v != "" {
		c.Version = v
	}
	return c
}

// ParseSaveFlag reports whether v is the literal "true", ignoring case.
func ParseSaveFlag(v string) bool {
	return strings.EqualFold(v, "true")
}

// LoadFile reads a YAML config file on top of the defaults.
// Unknown keys are rejected so typos surface instead of being ignored.
func LoadFile(path string) (Config, error) {
	return Default().ApplyFile(path)
}

// ApplyFile returns a copy of c with the YAML file's fields applied.
func (c Config) ApplyFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return c, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Name != nil {
		c.Name = *fc.Name
	}
	if fc.Version != nil {
		c.Version = *fc.Version
	}
	if fc.DataDir != nil {
		c.DataDir = *fc.DataDir
	}
	if fc.DataFile != nil {
		c.DataFile = *fc.DataFile
	}
	if fc.SaveOnClose != nil {
		c.SaveOnClose = *fc.SaveOnClose
	}
	return c, nil
}

// WithInstanceID returns a copy of c with InstanceID set, generating a
// time-ordered UUIDv7 when none is configured.
func (c Config) WithInstanceID() Config {
	if c.InstanceID == "" {
		c.InstanceID = uuid.Must(uuid.NewV7()).String()
	}
	return c
}

// Validate checks that the data file can be resolved under the data dir.
func (c Config) Validate() error {
	if c.DataFile == "" {
		return fmt.Errorf("data file cannot be empty")
	}
	if filepath.IsAbs(c.DataFile) {
		return fmt.Errorf("data file must be relative to the data dir: %s", c.DataFile)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir cannot be empty")
	}
	return nil
}

// Path returns the persistence file location.
func (c Config) Path() string {
	return filepath.Join(c.DataDir, c.DataFile)
}
