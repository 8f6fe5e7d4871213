package sources

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codetally/codetally/models"
)

// newStateDB creates a state database fixture with the given key/value
// rows and points the parser at it.
func newStateDB(t *testing.T, rows map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.vscdb")

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE cursorDiskKV (key TEXT PRIMARY KEY, value BLOB)`)
	require.NoError(t, err)

	for key, value := range rows {
		_, err = db.Exec(`INSERT INTO cursorDiskKV (key, value) VALUES (?, ?)`, key, []byte(value))
		require.NoError(t, err)
	}

	t.Setenv("CURSOR_STATE_DB", path)
	return path
}

func cursorComposer(id, model string, createdMs int64) (string, string) {
	return "composerData:" + id,
		fmt.Sprintf(`{"composerId":%q,"modelName":%q,"createdAt":%d}`, id, model, createdMs)
}

func cursorBubble(composerID, bubbleID string, bubbleType, input, output int, createdMs int64) (string, string) {
	return fmt.Sprintf("bubbleId:%s:%s", composerID, bubbleID),
		fmt.Sprintf(`{"type":%d,"createdAt":%d,"tokenCount":{"inputTokens":%d,"outputTokens":%d}}`,
			bubbleType, createdMs, input, output)
}

func TestCursorScan(t *testing.T) {
	rows := map[string]string{}
	k, v := cursorComposer("comp1", "gpt-4o", 1710496800000)
	rows[k] = v
	k, v = cursorBubble("comp1", "bub1", bubbleTypeAssistant, 100, 50, 1710496805000)
	rows[k] = v
	k, v = cursorBubble("comp1", "bub2", 1, 0, 0, 1710496810000) // user turn
	rows[k] = v
	newStateDB(t, rows)

	p := NewCursor()
	assert.True(t, p.Exists())

	res := p.Parse(Options{})
	require.Len(t, res.Records, 1)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.FilesProcessed)

	r := res.Records[0]
	assert.Equal(t, "bub1", r.ID)
	assert.Equal(t, "comp1", r.SessionID)
	assert.Equal(t, models.SourceCursor, r.Source)
	assert.Equal(t, "gpt-4o", r.Model)
	assert.Equal(t, 100, r.InputTokens)
	assert.Equal(t, 50, r.OutputTokens)
	assert.NoError(t, r.Validate())
}

func TestCursorOrphanBubbleFallsBackToUnknownModel(t *testing.T) {
	rows := map[string]string{}
	k, v := cursorBubble("ghost", "bub1", bubbleTypeAssistant, 10, 5, 1710496800000)
	rows[k] = v
	newStateDB(t, rows)

	res := NewCursor().Parse(Options{})
	require.Len(t, res.Records, 1)
	assert.Equal(t, models.UnknownModel, res.Records[0].Model)
	assert.Equal(t, "ghost", res.Records[0].SessionID)
}

func TestCursorMalformedRowsSwallowed(t *testing.T) {
	rows := map[string]string{
		"bubbleId:comp1:broken": "{definitely not json",
		"bubbleId:malformed":    `{"type":2,"tokenCount":{"inputTokens":5}}`, // no bubble ID segment
	}
	k, v := cursorBubble("comp1", "bub1", bubbleTypeAssistant, 10, 5, 1710496800000)
	rows[k] = v
	newStateDB(t, rows)

	res := NewCursor().Parse(Options{})
	assert.Len(t, res.Records, 1)
	assert.Empty(t, res.Errors)
}

func TestCursorZeroTokenBubbleFiltered(t *testing.T) {
	rows := map[string]string{}
	k, v := cursorBubble("comp1", "bub1", bubbleTypeAssistant, 0, 0, 1710496800000)
	rows[k] = v
	newStateDB(t, rows)

	res := NewCursor().Parse(Options{})
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Errors)
}

func TestCursorLimit(t *testing.T) {
	rows := map[string]string{}
	for i := 0; i < 8; i++ {
		k, v := cursorBubble("comp1", fmt.Sprintf("bub%d", i), bubbleTypeAssistant, 10, 5, 1710496800000)
		rows[k] = v
	}
	newStateDB(t, rows)

	res := NewCursor().Parse(Options{Limit: 3})
	assert.Len(t, res.Records, 3)
}

func TestCursorIncrementalSkipsUnchangedDatabase(t *testing.T) {
	rows := map[string]string{}
	k, v := cursorComposer("comp1", "gpt-4o", 1710496800000)
	rows[k] = v
	k, v = cursorBubble("comp1", "bub1", bubbleTypeAssistant, 100, 50, 1710496805000)
	rows[k] = v
	newStateDB(t, rows)

	p := NewCursor()
	first := p.ParseIncremental(nil, Options{})
	require.Len(t, first.Records, 1)
	assert.False(t, first.IsIncremental)
	assert.NotEmpty(t, first.Checkpoint.LastTimestamp)

	second := p.ParseIncremental(first.Checkpoint, Options{})
	assert.True(t, second.IsIncremental)
	assert.Empty(t, second.Records)
	assert.Equal(t, 1, second.SkippedFiles)
	assert.Equal(t, 1, second.FilesProcessed)
	assert.Equal(t, first.Checkpoint, second.Checkpoint, "unchanged database carries the checkpoint forward verbatim")
}

func TestCursorChangedDatabaseRescansEverything(t *testing.T) {
	rows := map[string]string{}
	k, v := cursorComposer("comp1", "gpt-4o", 1710496800000)
	rows[k] = v
	k, v = cursorBubble("comp1", "bub1", bubbleTypeAssistant, 100, 50, 1710496805000)
	rows[k] = v
	path := newStateDB(t, rows)

	p := NewCursor()
	first := p.ParseIncremental(nil, Options{})
	require.Len(t, first.Records, 1)

	// Append a second assistant bubble; the store cannot be diffed at
	// row granularity, so both rows come back.
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	k, v = cursorBubble("comp1", "bub2", bubbleTypeAssistant, 20, 10, 1710496900000)
	_, err = db.Exec(`INSERT INTO cursorDiskKV (key, value) VALUES (?, ?)`, k, []byte(v))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	second := p.ParseIncremental(first.Checkpoint, Options{})
	assert.Len(t, second.Records, 2)
	assert.Equal(t, 0, second.SkippedFiles)
	assert.Greater(t, second.Checkpoint.LastTimestamp, first.Checkpoint.LastTimestamp)
}

func TestCursorDatabaseMissing(t *testing.T) {
	t.Setenv("CURSOR_STATE_DB", filepath.Join(t.TempDir(), "absent.vscdb"))

	p := NewCursor()
	assert.False(t, p.Exists())

	res := p.Parse(Options{})
	assert.Empty(t, res.Records)
	assert.Len(t, res.Errors, 1)
}

func TestSplitBubbleKey(t *testing.T) {
	tests := []struct {
		key        string
		composerID string
		bubbleID   string
		ok         bool
	}{
		{"bubbleId:comp1:bub1", "comp1", "bub1", true},
		{"bubbleId:comp1:bub:with:colons", "comp1", "bub:with:colons", true},
		{"bubbleId:comp1", "", "", false},
		{"bubbleId::bub1", "", "", false},
		{"composerData:comp1", "", "", false},
	}
	for _, tt := range tests {
		composerID, bubbleID, ok := splitBubbleKey(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.composerID, composerID, tt.key)
		assert.Equal(t, tt.bubbleID, bubbleID, tt.key)
	}
}
