package persist

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_ReadFile_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	codec := NewJSONCodec()

	original := testState{Name: "round-trip", Count: 7, Values: map[string]int{"k": 5}}

	require.NoError(t, WriteFile(path, codec, original))

	var loaded testState

	require.NoError(t, ReadFile(path, codec, &loaded))

	assert.Equal(t, original.Name, loaded.Name)
	assert.Equal(t, original.Count, loaded.Count)
	assert.Equal(t, original.Values, loaded.Values)
}

func TestWriteFile_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.yaml")
	codec := NewYAMLCodec()

	require.NoError(t, WriteFile(path, codec, testState{Name: "yaml", Count: 3}))

	var loaded testState

	require.NoError(t, ReadFile(path, codec, &loaded))

	assert.Equal(t, "yaml", loaded.Name)
	assert.Equal(t, 3, loaded.Count)
}

func TestWriteFile_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.NoError(t, WriteFile(path, NewJSONCodec(), testState{Name: "clean"}))

	entries, err := os.ReadDir(dir)

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestWriteFile_EncodeErrorKeepsExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	codec := NewJSONCodec()

	require.NoError(t, WriteFile(path, codec, testState{Name: "original", Count: 1}))

	// Channels cannot be JSON-encoded; the failed write must not clobber
	// the previous file.
	err := WriteFile(path, codec, make(chan int))

	require.Error(t, err)

	var loaded testState

	require.NoError(t, ReadFile(path, codec, &loaded))
	assert.Equal(t, "original", loaded.Name)
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	t.Parallel()

	err := WriteFile("/nonexistent/path/state.json", NewJSONCodec(), testState{Name: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create temp state file")
}

func TestReadFile_NotFound(t *testing.T) {
	t.Parallel()

	var state testState

	err := ReadFile(filepath.Join(t.TempDir(), "missing.json"), NewJSONCodec(), &state)

	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestReadFile_DecodeError(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "corrupt.json")

	require.NoError(t, os.WriteFile(path, []byte("not json{{{"), 0o600))

	var state testState

	err := ReadFile(path, NewJSONCodec(), &state)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode state")
}
