package checkpoint

import (
	"fmt"
	"io/fs"
	"time"

	"github.com/bytedance/sonic"
)

// Kind discriminates the two checkpoint shapes. Tree checkpoints track
// one entry per event file; database checkpoints track the single
// physical database file of a source.
type Kind string

const (
	KindTree     Kind = "tree"
	KindDatabase Kind = "database"
)

// FileState is the last observed stat of one event file.
type FileState struct {
	MTime int64 `json:"mtime"`
	Size  int64 `json:"size"`
}

// Checkpoint is the persisted cursor describing what a previous scan of
// a source has already read. It is a function purely of the previous
// checkpoint plus the on-disk state at scan time; it carries no record
// data and round-trips as opaque JSON.
//
// A parse call replaces the checkpoint wholesale. It is never merged
// field by field with the old value, except that unchanged tree entries
// are copied forward verbatim.
type Checkpoint struct {
	Kind         Kind      `json:"kind"`
	LastSyncedAt time.Time `json:"last_synced_at"`

	// Tree shape: absolute file path -> last observed stat. Paths
	// that no longer exist on disk are simply never copied into the
	// next checkpoint.
	Files map[string]FileState `json:"files,omitempty"`

	// Database shape: stat of the one physical database file plus the
	// highest record timestamp produced by the last full scan.
	DBMTime       int64  `json:"db_mtime,omitempty"`
	DBSize        int64  `json:"db_size,omitempty"`
	LastTimestamp string `json:"last_timestamp,omitempty"`
}

// NewTree returns an empty tree-shaped checkpoint.
func NewTree() *Checkpoint {
	return &Checkpoint{
		Kind:  KindTree,
		Files: make(map[string]FileState),
	}
}

// NewDatabase returns an empty database-shaped checkpoint.
func NewDatabase() *Checkpoint {
	return &Checkpoint{Kind: KindDatabase}
}

// Clone returns a deep copy. Incremental parses that skip an unchanged
// source return a copy of the previous checkpoint rather than aliasing
// the caller's value.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	if c.Files != nil {
		out.Files = make(map[string]FileState, len(c.Files))
		for path, state := range c.Files {
			out.Files[path] = state
		}
	}
	return &out
}

// MatchesFile reports whether a tree entry exists for path with the
// same mtime and size as the given stat. A match means the file has
// not changed since it was last read.
func (c *Checkpoint) MatchesFile(path string, info fs.FileInfo) bool {
	if c == nil || c.Files == nil {
		return false
	}
	state, ok := c.Files[path]
	if !ok {
		return false
	}
	return state.MTime == info.ModTime().UnixNano() && state.Size == info.Size()
}

// MatchesDatabase reports whether the stored database stat equals the
// given stat. A match skips the entire source in one step.
func (c *Checkpoint) MatchesDatabase(info fs.FileInfo) bool {
	if c == nil {
		return false
	}
	return c.DBMTime == info.ModTime().UnixNano() && c.DBSize == info.Size()
}

// RecordFile writes a fresh stat entry for path into a tree checkpoint.
func (c *Checkpoint) RecordFile(path string, info fs.FileInfo) {
	if c.Files == nil {
		c.Files = make(map[string]FileState)
	}
	c.Files[path] = FileState{
		MTime: info.ModTime().UnixNano(),
		Size:  info.Size(),
	}
}

// RecordDatabase writes the database file stat into a database checkpoint.
func (c *Checkpoint) RecordDatabase(info fs.FileInfo) {
	c.DBMTime = info.ModTime().UnixNano()
	c.DBSize = info.Size()
}

// Encode marshals the checkpoint to JSON for persistence.
func (c *Checkpoint) Encode() ([]byte, error) {
	data, err := sonic.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	return data, nil
}

// Decode unmarshals a stored checkpoint. Unknown fields are ignored,
// never rejected, so adding a new source shape cannot break decoding
// of sibling sources' checkpoints stored alongside it.
func Decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := sonic.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Kind != KindTree && cp.Kind != KindDatabase {
		return nil, fmt.Errorf("unrecognized checkpoint kind %q", cp.Kind)
	}
	if cp.Kind == KindTree && cp.Files == nil {
		cp.Files = make(map[string]FileState)
	}
	return &cp, nil
}
