package sources

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	_ "modernc.org/sqlite"

	"github.com/codetally/codetally/calculations"
	"github.com/codetally/codetally/checkpoint"
	"github.com/codetally/codetally/models"
)

// cursorParser implements the database-based variant over Cursor's
// state.vscdb key/value store. The diff rule is coarse: the store
// cannot be diffed at row granularity, so an unchanged (mtime, size)
// stat skips the whole source and any change forces a full re-scan.
type cursorParser struct{}

// NewCursor returns the parser for Cursor's embedded state database.
func NewCursor() Parser {
	return &cursorParser{}
}

// composerData is the session-level metadata stored under
// "composerData:<composerID>" keys: the model in use and when the
// session was created.
type composerData struct {
	ComposerID string `json:"composerId"`
	ModelName  string `json:"modelName"`
	CreatedAt  int64  `json:"createdAt"`
}

// bubbleData is one message row stored under
// "bubbleId:<composerID>:<bubbleID>" keys. Type 2 marks an assistant
// response; token counts live in a nested object.
type bubbleData struct {
	Type       int   `json:"type"`
	CreatedAt  int64 `json:"createdAt"`
	TokenCount struct {
		InputTokens      int `json:"inputTokens"`
		OutputTokens     int `json:"outputTokens"`
		CacheWriteTokens int `json:"cacheWriteTokens"`
		CacheReadTokens  int `json:"cacheReadTokens"`
	} `json:"tokenCount"`
}

const bubbleTypeAssistant = 2

func (c *cursorParser) Source() models.SourceType {
	return models.SourceCursor
}

// Exists checks for the state database at the platform location.
func (c *cursorParser) Exists() bool {
	path := c.databasePath()
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (c *cursorParser) Parse(opts Options) *Result {
	res := c.scan(nil, opts)
	return &res.Result
}

func (c *cursorParser) ParseIncremental(prev *checkpoint.Checkpoint, opts Options) *IncrementalResult {
	return c.scan(prev, opts)
}

func (c *cursorParser) scan(prev *checkpoint.Checkpoint, opts Options) *IncrementalResult {
	res := &IncrementalResult{
		Result:        Result{Source: models.SourceCursor},
		IsIncremental: prev != nil,
	}

	path := c.databasePath()
	if path == "" {
		res.Result = sourceUnavailable(models.SourceCursor, "", "no state database location for this platform")
		res.Checkpoint = carryOrNewDatabase(prev)
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		res.Result = sourceUnavailable(models.SourceCursor, path, fmt.Sprintf("state database not found: %v", err))
		res.Checkpoint = carryOrNewDatabase(prev)
		return res
	}

	if prev.MatchesDatabase(info) {
		// Unchanged database: the entire previous checkpoint, including
		// lastTimestamp, is carried forward verbatim.
		res.Checkpoint = prev.Clone()
		res.SkippedFiles = 1
		res.FilesProcessed = 1
		res.Stats = emptyStats()
		return res
	}

	records, parseErrs := c.scanDatabase(path, opts)
	res.Records = records
	res.Errors = append(res.Errors, parseErrs...)
	res.FilesProcessed = 1

	cp := checkpoint.NewDatabase()
	cp.RecordDatabase(info)
	cp.LastSyncedAt = time.Now().UTC()
	for _, r := range records {
		if ts := r.TimestampKey(); ts > cp.LastTimestamp {
			cp.LastTimestamp = ts
		}
	}
	res.Checkpoint = cp
	res.Stats = calculations.ComputeStats(res.Records)
	return res
}

// scanDatabase performs the full two-scan read. The session metadata
// scan must run first: the message scan joins against the lookup table
// it builds. The database is opened strictly read-only and closed on
// every exit path; leaking a lock would block Cursor's own writer.
func (c *cursorParser) scanDatabase(path string, opts Options) ([]models.UsageRecord, []ParseError) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, []ParseError{{Path: path, Message: fmt.Sprintf("failed to open state database: %v", err)}}
	}
	defer db.Close()

	sessions, err := c.loadSessions(db)
	if err != nil {
		return nil, []ParseError{{Path: path, Message: fmt.Sprintf("failed to read session metadata: %v", err)}}
	}

	records, err := c.loadMessages(db, sessions, opts)
	if err != nil {
		return records, []ParseError{{Path: path, Message: fmt.Sprintf("failed to read message rows: %v", err)}}
	}
	return records, nil
}

// loadSessions builds the composerID -> metadata lookup table from the
// first logical row class. Row payloads that fail to decode are
// dropped silently; partial writes by the vendor are routine and not
// user-actionable.
func (c *cursorParser) loadSessions(db *sql.DB) (map[string]composerData, error) {
	rows, err := db.Query(`SELECT key, value FROM cursorDiskKV WHERE key LIKE 'composerData:%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make(map[string]composerData)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}

		var meta composerData
		if err := sonic.Unmarshal(value, &meta); err != nil {
			continue
		}
		if meta.ComposerID == "" {
			meta.ComposerID = strings.TrimPrefix(key, "composerData:")
		}
		sessions[meta.ComposerID] = meta
	}
	return sessions, rows.Err()
}

// loadMessages scans the second logical row class and joins each
// assistant row to its session metadata by composer ID. Unresolvable
// references fall back to the sentinel model name and a synthesized
// timestamp.
func (c *cursorParser) loadMessages(db *sql.DB, sessions map[string]composerData, opts Options) ([]models.UsageRecord, error) {
	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM cursorDiskKV WHERE key LIKE 'bubbleId:%'`).Scan(&total); err != nil {
		total = 0
	}

	rows, err := db.Query(`SELECT key, value FROM cursorDiskKV WHERE key LIKE 'bubbleId:%'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scanStart := time.Now().UTC()
	var records []models.UsageRecord
	processed := 0

	for rows.Next() {
		if opts.Limit > 0 && len(records) >= opts.Limit {
			break
		}

		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		processed++
		reportProgress(opts.Progress, processed, total)

		composerID, bubbleID, ok := splitBubbleKey(key)
		if !ok {
			continue
		}

		var bubble bubbleData
		if err := sonic.Unmarshal(value, &bubble); err != nil {
			continue // decode failures are swallowed by design
		}

		tc := bubble.TokenCount
		if bubble.Type != bubbleTypeAssistant {
			continue
		}
		if tc.InputTokens == 0 && tc.OutputTokens == 0 && tc.CacheWriteTokens == 0 && tc.CacheReadTokens == 0 {
			continue
		}

		model := models.UnknownModel
		ts := time.UnixMilli(bubble.CreatedAt).UTC()
		if meta, found := sessions[composerID]; found {
			if meta.ModelName != "" {
				model = meta.ModelName
			}
			if bubble.CreatedAt == 0 && meta.CreatedAt != 0 {
				ts = time.UnixMilli(meta.CreatedAt).UTC()
			}
		}
		if bubble.CreatedAt == 0 && ts.Unix() <= 0 {
			ts = scanStart
		}

		records = append(records, models.UsageRecord{
			ID:                  bubbleID,
			SessionID:           composerID,
			Source:              models.SourceCursor,
			Model:               model,
			Timestamp:           ts,
			InputTokens:         tc.InputTokens,
			OutputTokens:        tc.OutputTokens,
			CacheCreationTokens: tc.CacheWriteTokens,
			CacheReadTokens:     tc.CacheReadTokens,
		})
	}
	return records, rows.Err()
}

// databasePath resolves the state database location for the current OS.
// CURSOR_STATE_DB overrides the well-known locations.
func (c *cursorParser) databasePath() string {
	if path := os.Getenv("CURSOR_STATE_DB"); path != "" {
		return path
	}

	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(homeDir, "Library", "Application Support", "Cursor", "User", "globalStorage", "state.vscdb")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return ""
		}
		return filepath.Join(appData, "Cursor", "User", "globalStorage", "state.vscdb")
	default:
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(homeDir, ".config", "Cursor", "User", "globalStorage", "state.vscdb")
	}
}

// splitBubbleKey parses "bubbleId:<composerID>:<bubbleID>".
func splitBubbleKey(key string) (composerID, bubbleID string, ok bool) {
	rest, found := strings.CutPrefix(key, "bubbleId:")
	if !found {
		return "", "", false
	}
	composerID, bubbleID, found = strings.Cut(rest, ":")
	if !found || composerID == "" || bubbleID == "" {
		return "", "", false
	}
	return composerID, bubbleID, true
}

func carryOrNewDatabase(prev *checkpoint.Checkpoint) *checkpoint.Checkpoint {
	if prev != nil {
		return prev.Clone()
	}
	cp := checkpoint.NewDatabase()
	cp.LastSyncedAt = time.Now().UTC()
	return cp
}
