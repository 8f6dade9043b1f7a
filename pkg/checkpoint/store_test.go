package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Torimasen-tech/lingfang/pkg/persist"
	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// mixedTS has one finalized unit, one draft and one missing translation.
const mixedTS = `<?xml version="1.0" encoding="utf-8"?>
<TS version="2.1" language="zh_CN">
  <context>
    <name>Panel</name>
    <message>
      <source>Open</source>
      <translation>打开</translation>
    </message>
    <message>
      <source>Close</source>
      <translation type="unfinished">关</translation>
    </message>
    <message>
      <source>Save</source>
      <translation type="unfinished"></translation>
    </message>
  </context>
</TS>
`

func parseDoc(t *testing.T, src string) *tsdoc.Document {
	t.Helper()

	doc, err := tsdoc.Parse(strings.NewReader(src))
	require.NoError(t, err)

	return doc
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "app_zh_CN.ts.checkpoint", DefaultPath("app_zh_CN.ts"))
}

func TestStore_MarkDone_PersistsImmediately(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	store := NewStore(path, "doc.ts", "start=1 dedupe=true include_finished=false max=0")

	require.NoError(t, store.MarkDone("Panel", "Open"))

	assert.True(t, store.Exists())

	resumed := NewStore(path, "doc.ts", "start=1 dedupe=true include_finished=false max=0")

	require.NoError(t, resumed.Load())

	assert.True(t, resumed.IsDone("Panel", "Open"))
	assert.Equal(t, 1, resumed.Count())
}

func TestStore_MarkDone_DuplicateIsNoop(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	store := NewStore(path, "doc.ts", "f")

	require.NoError(t, store.MarkDone("Panel", "Open"))
	require.NoError(t, store.MarkDone("Panel", "Open"))

	assert.Equal(t, 1, store.Count())
}

func TestStore_IsDone_UnknownKey(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "doc.ts.checkpoint"), "doc.ts", "f")

	assert.False(t, store.IsDone("Panel", "Open"))
}

func TestStore_Load_MissingFileStartsEmpty(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "absent.checkpoint"), "doc.ts", "f")

	require.NoError(t, store.Load())

	assert.Equal(t, 0, store.Count())
	assert.False(t, store.Exists())
}

func TestStore_Load_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")

	require.NoError(t, os.WriteFile(path, []byte("not json{{{"), 0o600))

	store := NewStore(path, "doc.ts", "f")

	err := store.Load()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptCheckpoint)
}

func TestStore_Load_UnsupportedVersion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")

	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "keys": []}`), 0o600))

	store := NewStore(path, "doc.ts", "f")

	err := store.Load()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorruptCheckpoint)
}

func TestStore_Load_PreservesKeyOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	store := NewStore(path, "doc.ts", "f")

	require.NoError(t, store.MarkDone("A", "one"))
	require.NoError(t, store.MarkDone("B", "two"))
	require.NoError(t, store.MarkDone("A", "three"))

	var state State

	require.NoError(t, persist.ReadFile(path, persist.NewJSONCodec(), &state))

	require.Len(t, state.Keys, 3)
	assert.Equal(t, Key{Context: "A", Source: "one"}, state.Keys[0])
	assert.Equal(t, Key{Context: "B", Source: "two"}, state.Keys[1])
	assert.Equal(t, Key{Context: "A", Source: "three"}, state.Keys[2])
}

func TestStore_Validate_FreshStore(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "doc.ts.checkpoint"), "doc.ts", "f")

	assert.NoError(t, store.Validate())
}

func TestStore_Validate_DocumentMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shared.checkpoint")
	first := NewStore(path, "one.ts", "f")

	require.NoError(t, first.MarkDone("Panel", "Open"))

	second := NewStore(path, "two.ts", "f")

	require.NoError(t, second.Load())

	err := second.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentMismatch)
}

func TestStore_Validate_FilterMismatch(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	first := NewStore(path, "doc.ts", "start=1 dedupe=true include_finished=false max=0")

	require.NoError(t, first.MarkDone("Panel", "Open"))

	second := NewStore(path, "doc.ts", "start=5 dedupe=false include_finished=true max=0")

	require.NoError(t, second.Load())

	err := second.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFilterMismatch)
}

func TestStore_RunID_AdoptedOnResume(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	first := NewStore(path, "doc.ts", "f")

	require.NoError(t, first.MarkDone("Panel", "Open"))
	require.NotEmpty(t, first.RunID())

	second := NewStore(path, "doc.ts", "f")

	require.NotEqual(t, first.RunID(), second.RunID())
	require.NoError(t, second.Load())

	assert.Equal(t, first.RunID(), second.RunID())
}

func TestStore_SyncFinished_SeedsOnlyFinalUnits(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, mixedTS)
	store := NewStore(filepath.Join(t.TempDir(), "doc.ts.checkpoint"), "doc.ts", "f")

	seeded := store.SyncFinished(doc)

	assert.Equal(t, 1, seeded)
	assert.True(t, store.IsDone("Panel", "Open"))
	assert.False(t, store.IsDone("Panel", "Close"))
	assert.False(t, store.IsDone("Panel", "Save"))

	// Seeding alone must not create the file.
	assert.False(t, store.Exists())
}

func TestStore_SyncFinished_PersistedByNextMark(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, mixedTS)
	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	store := NewStore(path, "doc.ts", "f")

	store.SyncFinished(doc)

	require.NoError(t, store.MarkDone("Panel", "Close"))

	resumed := NewStore(path, "doc.ts", "f")

	require.NoError(t, resumed.Load())

	assert.Equal(t, 2, resumed.Count())
	assert.True(t, resumed.IsDone("Panel", "Open"))
	assert.True(t, resumed.IsDone("Panel", "Close"))
}

func TestStore_SyncFinished_Rerun(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, mixedTS)
	store := NewStore(filepath.Join(t.TempDir(), "doc.ts.checkpoint"), "doc.ts", "f")

	require.Equal(t, 1, store.SyncFinished(doc))
	assert.Equal(t, 0, store.SyncFinished(doc))
}

func TestStore_FinalizeAndClear_RemovesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	store := NewStore(path, "doc.ts", "f")

	require.NoError(t, store.MarkDone("Panel", "Open"))
	require.True(t, store.Exists())

	flushed := false

	require.NoError(t, store.FinalizeAndClear(func() error {
		flushed = true

		return nil
	}))

	assert.True(t, flushed)
	assert.False(t, store.Exists())
	assert.Equal(t, 0, store.Count())
}

func TestStore_FinalizeAndClear_FlushErrorKeepsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	store := NewStore(path, "doc.ts", "f")

	require.NoError(t, store.MarkDone("Panel", "Open"))

	flushErr := errors.New("disk full")

	err := store.FinalizeAndClear(func() error { return flushErr })

	require.Error(t, err)
	assert.ErrorIs(t, err, flushErr)
	assert.True(t, store.Exists())
	assert.Equal(t, 1, store.Count())
}

func TestStore_Clear_ResetsToFreshRun(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.ts.checkpoint")
	store := NewStore(path, "doc.ts", "f")

	require.NoError(t, store.MarkDone("Panel", "Open"))

	oldRunID := store.RunID()

	require.NoError(t, store.Clear())

	assert.False(t, store.Exists())
	assert.Equal(t, 0, store.Count())
	assert.False(t, store.IsDone("Panel", "Open"))
	assert.NotEqual(t, oldRunID, store.RunID())
}

func TestStore_Clear_MissingFileIsNoop(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "absent.checkpoint"), "doc.ts", "f")

	assert.NoError(t, store.Clear())
}
