package sources

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/codetally/codetally/models"
)

// claudeLine is one line of a Claude Code conversation transcript.
// Only assistant lines carry usage data; everything else (user turns,
// tool results, summaries) is consumed without producing a record.
type claudeLine struct {
	Type      string `json:"type"`
	UUID      string `json:"uuid"`
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage struct {
			InputTokens              int `json:"input_tokens"`
			OutputTokens             int `json:"output_tokens"`
			CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

// NewClaudeCode returns the parser for Claude Code's JSONL transcript
// tree. Each session is one .jsonl file under the projects directory;
// a changed file is re-read line by line and may yield many records.
func NewClaudeCode() Parser {
	return &treeParser{
		source: models.SourceClaudeCode,
		ext:    ".jsonl",
		roots:  claudeRoots,
		decode: decodeClaudeFile,
	}
}

// claudeRoots returns the candidate transcript roots in precedence
// order. An explicit CLAUDE_CONFIG_DIR override wins over the
// well-known home locations.
func claudeRoots() []string {
	if dir := os.Getenv("CLAUDE_CONFIG_DIR"); dir != "" {
		return []string{filepath.Join(dir, "projects")}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(homeDir, ".claude", "projects"),
		filepath.Join(homeDir, ".config", "claude", "projects"),
	}
}

func decodeClaudeFile(path string) ([]models.UsageRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript: %w", err)
	}
	defer file.Close()

	sessionID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []models.UsageRecord
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry claudeLine
		if err := sonic.Unmarshal(line, &entry); err != nil {
			continue // malformed lines are common for in-flight writes
		}

		if entry.Type != "assistant" {
			continue
		}

		usage := entry.Message.Usage
		if usage.InputTokens == 0 && usage.OutputTokens == 0 &&
			usage.CacheCreationInputTokens == 0 && usage.CacheReadInputTokens == 0 {
			continue
		}

		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil {
			continue
		}

		model := entry.Message.Model
		if model == "" {
			model = models.UnknownModel
		}

		id := entry.Message.ID
		if id == "" {
			id = entry.UUID
		}
		if id == "" {
			id = fmt.Sprintf("%s#%d", filepath.Base(path), lineNum)
		}

		sid := entry.SessionID
		if sid == "" {
			sid = sessionID
		}

		records = append(records, models.UsageRecord{
			ID:                  id,
			SessionID:           sid,
			Model:               model,
			Timestamp:           ts,
			InputTokens:         usage.InputTokens,
			OutputTokens:        usage.OutputTokens,
			CacheCreationTokens: usage.CacheCreationInputTokens,
			CacheReadTokens:     usage.CacheReadInputTokens,
		})
	}

	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("failed reading transcript at line %d: %w", lineNum, err)
	}
	return records, nil
}
