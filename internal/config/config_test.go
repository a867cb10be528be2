package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "filemock", cfg.Name)
	assert.Equal(t, "./data/", cfg.DataDir)
	assert.Equal(t, "default_data.json", cfg.DataFile)
	assert.False(t, cfg.SaveOnClose)
	assert.Equal(t, filepath.Join("data", "default_data.json"), cfg.Path())
}

func TestParseSaveFlag(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "true", want: true},
		{input: "TRUE", want: true},
		{input: "True", want: true},
		{input: "tRuE", want: true},
		{input: "", want: false},
		{input: "false", want: false},
		{input: "1", want: false},
		{input: "yes", want: false},
		{input: " true", want: false},
		{input: "true ", want: false},
		{input: "truex", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSaveFlag(tt.input))
		})
	}
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Config
	}{
		{
			name: "empty environment",
			env:  map[string]string{},
			want: Default(),
		},
		{
			name: "save on close enabled",
			env:  map[string]string{EnvSaveOnClose: "True"},
			want: Config{Name: DefaultName, Version: DefaultVersion, DataDir: DefaultDataDir, DataFile: DefaultDataFile, SaveOnClose: true},
		},
		{
			name: "save on close other value",
			env:  map[string]string{EnvSaveOnClose: "on"},
			want: Default(),
		},
		{
			name: "data file and dir",
			env:  map[string]string{EnvDataFile: "records.json", EnvDataDir: "/tmp/mock"},
			want: Config{Name: DefaultName, Version: DefaultVersion, DataDir: "/tmp/mock", DataFile: "records.json"},
		},
		{
			name: "empty overrides ignored",
			env:  map[string]string{EnvDataFile: "", EnvName: ""},
			want: Default(),
		},
		{
			name: "name and version",
			env:  map[string]string{EnvName: "mock-storage", EnvVersion: "2.0.0"},
			want: Config{Name: "mock-storage", Version: "2.0.0", DataDir: DefaultDataDir, DataFile: DefaultDataFile},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromEnv(envFrom(tt.env)))
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filemock.yaml")
	content := `
name: fixtures
data_dir: ./fixtures
data_file: records.json
save_on_close: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fixtures", cfg.Name)
	assert.Equal(t, DefaultVersion, cfg.Version)
	assert.Equal(t, "./fixtures", cfg.DataDir)
	assert.Equal(t, "records.json", cfg.DataFile)
	assert.True(t, cfg.SaveOnClose)
}

func TestLoadFile_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("datafile: x.json\n"), 0644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv_OverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filemock.yaml")
	require.NoError(t, os.WriteFile(path, []byte("save_on_close: true\ndata_file: a.json\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	cfg = cfg.ApplyEnv(envFrom(map[string]string{EnvSaveOnClose: "no", EnvDataFile: "b.json"}))
	assert.False(t, cfg.SaveOnClose)
	assert.Equal(t, "b.json", cfg.DataFile)
}

func TestWithInstanceID(t *testing.T) {
	cfg := Default().WithInstanceID()
	id, err := uuid.Parse(cfg.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	fixed := Config{InstanceID: "fixed"}.WithInstanceID()
	assert.Equal(t, "fixed", fixed.InstanceID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: Default()},
		{name: "nested relative file", cfg: Config{DataDir: "d", DataFile: "sub/x.json"}},
		{name: "empty file", cfg: Config{DataDir: "d"}, wantErr: true},
		{name: "absolute file", cfg: Config{DataDir: "d", DataFile: "/etc/x.json"}, wantErr: true},
		{name: "empty dir", cfg: Config{DataFile: "x.json"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
