package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/filemock/internal/record"
	"github.com/roach88/filemock/internal/testutil"
)

// dataFlags points the CLI at a fresh data file in a temp dir.
func dataFlags(t *testing.T) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "data.json"), []string{"--data-dir", dir, "--data-file", "data.json"}
}

func run(t *testing.T, flags []string, args ...string) (string, error) {
	t.Helper()
	return execute(t, append(args, flags...)...)
}

func TestSet_CreatesFile(t *testing.T) {
	path, flags := dataFlags(t)

	out, err := run(t, flags, "set", "doc", "--version", "2", "--data", `{"name":"elasticsearch","n":9007199254740993}`)
	require.NoError(t, err)
	assert.Equal(t, "set doc (version 2)\n", out)

	table, err := testutil.ReadDataFile(path)
	require.NoError(t, err)
	require.Contains(t, table, "doc")
	assert.Equal(t, "elasticsearch", table["doc"]["name"])
	assert.Equal(t, json.Number("9007199254740993"), table["doc"]["n"])

	v, err := table["doc"].Version()
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestGet_AfterSet(t *testing.T) {
	_, flags := dataFlags(t)

	_, err := run(t, flags, "set", "doc", "--version", "3", "--data", `{"name":"elasticsearch"}`)
	require.NoError(t, err)

	out, err := run(t, flags, "get", "doc")
	require.NoError(t, err)

	var w record.Wire
	require.NoError(t, json.Unmarshal([]byte(out), &w))
	assert.Equal(t, int64(3), w.Version)
	assert.Equal(t, map[string]any{"name": "elasticsearch"}, w.Data)
}

func TestGet_MissingKeyPrintsNull(t *testing.T) {
	_, flags := dataFlags(t)
	_, err := run(t, flags, "set", "a", "--data", `{}`)
	require.NoError(t, err)

	out, err := run(t, flags, "get", "b")
	require.NoError(t, err)
	assert.Equal(t, "null", strings.TrimSpace(out))
}

func TestGet_MissingFileIsCommandError(t *testing.T) {
	_, flags := dataFlags(t)

	_, err := run(t, flags, "get", "doc")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestGet_InvalidKey(t *testing.T) {
	_, flags := dataFlags(t)
	_, err := run(t, flags, "set", "a", "--data", `{}`)
	require.NoError(t, err)

	out, err := run(t, flags, "get", "", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_KEY", resp.Error.Code)
}

func TestSet_InvalidData(t *testing.T) {
	path, flags := dataFlags(t)

	for _, data := range []string{`not json`, `[1,2]`, `null`, `{"a":1} {"b":2}`} {
		t.Run(data, func(t *testing.T) {
			_, err := run(t, flags, "set", "doc", "--data", data)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "rejected input must not create the file")
}

func TestSet_RequiresData(t *testing.T) {
	_, flags := dataFlags(t)

	_, err := run(t, flags, "set", "doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestSet_ReservedFieldRejected(t *testing.T) {
	path, flags := dataFlags(t)

	_, err := run(t, flags, "set", "doc", "--data", `{"__ds":"mine"}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "a rejected set must not create the file")
}

func TestSet_RejectedLeavesFileUntouched(t *testing.T) {
	path, flags := dataFlags(t)
	original := `{"doc":{"name":"kept","__ds":{"_v":1}}}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0644))

	_, err := run(t, flags, "set", "doc", "--data", `{"__ds":"mine"}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestDelete_InvalidKeyLeavesFileUntouched(t *testing.T) {
	path, flags := dataFlags(t)
	original := `{"doc":{"name":"kept","__ds":{"_v":1}}}`
	require.NoError(t, os.WriteFile(path, []byte(original), 0644))

	_, err := run(t, flags, "delete", "")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestSet_RefusesUnreadableFile(t *testing.T) {
	path, flags := dataFlags(t)
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0644))

	_, err := run(t, flags, "set", "doc", "--data", `{}`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(data), "unreadable file must not be overwritten")
}

func TestDelete(t *testing.T) {
	path, flags := dataFlags(t)

	_, err := run(t, flags, "set", "a", "--data", `{"n":1}`)
	require.NoError(t, err)
	_, err = run(t, flags, "set", "b", "--data", `{"n":2}`)
	require.NoError(t, err)

	out, err := run(t, flags, "delete", "a")
	require.NoError(t, err)
	assert.Equal(t, "deleted a\n", out)

	_, err = run(t, flags, "delete", "never-there")
	require.NoError(t, err)

	table, err := testutil.ReadDataFile(path)
	require.NoError(t, err)
	assert.NotContains(t, table, "a")
	assert.Contains(t, table, "b")
}

func TestDump(t *testing.T) {
	_, flags := dataFlags(t)

	_, err := run(t, flags, "set", "a", "--version", "1", "--data", `{"n":"a"}`)
	require.NoError(t, err)
	_, err = run(t, flags, "set", "b", "--version", "2", "--data", `{"n":"b"}`)
	require.NoError(t, err)

	out, err := run(t, flags, "dump", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":{
		"a":{"_v":1,"_d":{"n":"a"}},
		"b":{"_v":2,"_d":{"n":"b"}}
	}}`, out)

	raw, err := run(t, flags, "dump", "--raw")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"a":{"n":"a","__ds":{"_v":1}},
		"b":{"n":"b","__ds":{"_v":2}}
	}`, raw)
}

func TestDump_MalformedRecord(t *testing.T) {
	dir := t.TempDir()
	_, err := testutil.WriteDataFile(dir, "data.json", map[string]record.Storage{
		"legacy": {"name": "no metadata"},
	})
	require.NoError(t, err)

	_, err = execute(t, "dump", "--data-dir", dir, "--data-file", "data.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, record.ErrMalformedRecord)

	raw, err := execute(t, "dump", "--raw", "--data-dir", dir, "--data-file", "data.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"legacy":{"name":"no metadata"}}`, raw)
}

func TestReadOnlyCommandsDoNotWrite(t *testing.T) {
	path, flags := dataFlags(t)
	_, err := run(t, flags, "set", "a", "--data", `{"n":1}`)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, flags, "get", "a")
	require.NoError(t, err)
	_, err = run(t, flags, "dump")
	require.NoError(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	infoAfter, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), infoAfter.ModTime())
}
