package sources

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/bytedance/sonic"
	"github.com/codetally/codetally/models"
)

// openCodeMessage is one per-event message file from OpenCode's storage
// tree. Only completed assistant messages with token counts pass the
// usable-data predicate; every other file is consumed with zero records.
type openCodeMessage struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionID"`
	Role       string `json:"role"`
	ModelID    string `json:"modelID"`
	ProviderID string `json:"providerID"`
	Tokens     struct {
		Input  int64 `json:"input"`
		Output int64 `json:"output"`
		Cache  struct {
			Read  int64 `json:"read"`
			Write int64 `json:"write"`
		} `json:"cache"`
	} `json:"tokens"`
	Time struct {
		Created   int64 `json:"created"`
		Completed int64 `json:"completed"`
	} `json:"time"`
}

// NewOpenCode returns the parser for OpenCode's per-event message tree.
// Each file holds exactly one message, so a changed file yields at most
// one record.
func NewOpenCode() Parser {
	return &treeParser{
		source: models.SourceOpenCode,
		ext:    ".json",
		roots:  openCodeRoots,
		decode: decodeOpenCodeFile,
	}
}

// openCodeRoots returns the candidate storage roots in precedence
// order: explicit override, then the platform data home.
func openCodeRoots() []string {
	if dir := os.Getenv("OPENCODE_DATA_DIR"); dir != "" {
		return []string{filepath.Join(dir, "storage", "message")}
	}

	var roots []string
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			roots = append(roots, filepath.Join(appData, "opencode", "storage", "message"))
		}
		return roots
	}

	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		roots = append(roots, filepath.Join(dataHome, "opencode", "storage", "message"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(homeDir, ".local", "share", "opencode", "storage", "message"))
	}
	return roots
}

func decodeOpenCodeFile(path string) ([]models.UsageRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message file: %w", err)
	}

	var msg openCodeMessage
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message file: %w", err)
	}

	if msg.Role != "assistant" {
		return nil, nil
	}

	tokens := msg.Tokens
	if tokens.Input == 0 && tokens.Output == 0 && tokens.Cache.Write == 0 && tokens.Cache.Read == 0 {
		return nil, nil
	}

	completed := msg.Time.Completed
	if completed == 0 {
		completed = msg.Time.Created
	}
	if completed == 0 {
		return nil, nil
	}

	model := msg.ModelID
	if model == "" {
		model = models.UnknownModel
	}

	id := msg.ID
	if id == "" {
		id = filepath.Base(path)
	}

	return []models.UsageRecord{{
		ID:                  id,
		SessionID:           msg.SessionID,
		Model:               model,
		Timestamp:           time.UnixMilli(completed).UTC(),
		InputTokens:         int(tokens.Input),
		OutputTokens:        int(tokens.Output),
		CacheCreationTokens: int(tokens.Cache.Write),
		CacheReadTokens:     int(tokens.Cache.Read),
	}}, nil
}
