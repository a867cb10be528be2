package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filemock/internal/config"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "filemock", cmd.Use)
	assert.Contains(t, cmd.Long, "FILE_MOCK_")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"get", "set", "delete", "dump", "export", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "data-dir", "data-file"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestSetCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	setCmd, _, err := cmd.Find([]string{"set"})
	require.NoError(t, err)

	versionFlag := setCmd.Flags().Lookup("version")
	require.NotNil(t, versionFlag)
	assert.Equal(t, "0", versionFlag.DefValue)

	require.NotNil(t, setCmd.Flags().Lookup("data"))
}

func TestExportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	exportCmd, _, err := cmd.Find([]string{"export"})
	require.NoError(t, err)

	outFlag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, outFlag)
	assert.Equal(t, "o", outFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "dump", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestLoadConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "filemock.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
name: from-file
data_dir: /file/dir
data_file: file.json
save_on_close: true
`), 0644))

	env := map[string]string{
		config.EnvDataFile: "env.json",
		config.EnvName:     "from-env",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	tests := []struct {
		name     string
		opts     RootOptions
		wantName string
		wantDir  string
		wantFile string
	}{
		{
			name:     "file only",
			opts:     RootOptions{ConfigFile: cfgPath, LookupEnv: func(string) (string, bool) { return "", false }},
			wantName: "from-file",
			wantDir:  "/file/dir",
			wantFile: "file.json",
		},
		{
			name:     "env over file",
			opts:     RootOptions{ConfigFile: cfgPath, LookupEnv: lookup},
			wantName: "from-env",
			wantDir:  "/file/dir",
			wantFile: "env.json",
		},
		{
			name:     "flags over env",
			opts:     RootOptions{ConfigFile: cfgPath, LookupEnv: lookup, DataDir: "/flag/dir", DataFile: "flag.json"},
			wantName: "from-env",
			wantDir:  "/flag/dir",
			wantFile: "flag.json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.opts.loadConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, cfg.Name)
			assert.Equal(t, tt.wantDir, cfg.DataDir)
			assert.Equal(t, tt.wantFile, cfg.DataFile)
			assert.True(t, cfg.SaveOnClose)
			assert.NotEmpty(t, cfg.InstanceID)
		})
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	noEnv := func(string) (string, bool) { return "", false }

	opts := RootOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml"), LookupEnv: noEnv}
	_, err := opts.loadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	opts = RootOptions{DataFile: "/abs/data.json", LookupEnv: noEnv}
	_, err = opts.loadConfig()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "relative to the data dir")
}
