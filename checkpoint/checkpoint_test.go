package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeCheckpointRoundTrip(t *testing.T) {
	cp := NewTree()
	cp.LastSyncedAt = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	cp.Files["/home/user/.claude/projects/a/session.jsonl"] = FileState{MTime: 1710504000000000000, Size: 4096}
	cp.Files["/home/user/.claude/projects/b/session.jsonl"] = FileState{MTime: 1710504060000000000, Size: 123}

	data, err := cp.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, cp, decoded)
}

func TestDatabaseCheckpointRoundTrip(t *testing.T) {
	cp := NewDatabase()
	cp.LastSyncedAt = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	cp.DBMTime = 1710504000000000000
	cp.DBSize = 1 << 20
	cp.LastTimestamp = "2024-03-15T11:59:00Z"

	data, err := cp.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, cp, decoded)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	// A future version may persist fields this one does not know.
	data := []byte(`{"kind":"tree","files":{"/a":{"mtime":1,"size":2}},"shard_count":16,"compression":"zstd"}`)

	cp, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindTree, cp.Kind)
	assert.Equal(t, FileState{MTime: 1, Size: 2}, cp.Files["/a"])
}

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"quantum"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDecodeTreeWithoutFilesGetsEmptyMap(t *testing.T) {
	cp, err := Decode([]byte(`{"kind":"tree"}`))
	require.NoError(t, err)
	assert.NotNil(t, cp.Files)
}

func TestCloneIsIndependent(t *testing.T) {
	cp := NewTree()
	cp.Files["/a"] = FileState{MTime: 1, Size: 2}

	clone := cp.Clone()
	clone.Files["/b"] = FileState{MTime: 3, Size: 4}

	assert.Len(t, cp.Files, 1)
	assert.Len(t, clone.Files, 2)
	assert.Equal(t, cp.Files["/a"], clone.Files["/a"])
}

func TestMatchesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"x":1}`), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)

	cp := NewTree()
	assert.False(t, cp.MatchesFile(path, info), "empty checkpoint matches nothing")

	cp.RecordFile(path, info)
	assert.True(t, cp.MatchesFile(path, info))

	// Size change breaks the match even if mtime were preserved.
	require.NoError(t, os.WriteFile(path, []byte(`{"x":1,"y":2}`), 0o644))
	changed, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, cp.MatchesFile(path, changed))

	var nilCp *Checkpoint
	assert.False(t, nilCp.MatchesFile(path, info))
}

func TestMatchesDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.vscdb")
	require.NoError(t, os.WriteFile(path, []byte("sqlite"), 0o644))

	info, err := os.Stat(path)
	require.NoError(t, err)

	cp := NewDatabase()
	assert.False(t, cp.MatchesDatabase(info))

	cp.RecordDatabase(info)
	assert.True(t, cp.MatchesDatabase(info))

	var nilCp *Checkpoint
	assert.False(t, nilCp.MatchesDatabase(info))
}
