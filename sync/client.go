package sync

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/codetally/codetally/models"
)

// DefaultBatchSize bounds how many records travel in one request.
const DefaultBatchSize = 500

// Client uploads normalized usage records to the remote service. The
// ingestion core never imports this package; the orchestrator hands it
// completed parse results through the Uploader interface.
type Client struct {
	server     string
	apiKey     string
	clientID   string
	clientName string
	batchSize  int
	httpClient *http.Client
}

// uploadRequest is the wire payload for one batch.
type uploadRequest struct {
	ClientID   string             `json:"client_id"`
	ClientName string             `json:"client_name"`
	Source     string             `json:"source"`
	Records    []uploadRecord     `json:"records"`
	Stats      *models.UsageStats `json:"stats,omitempty"`
}

type uploadRecord struct {
	ID                  string `json:"id"`
	SessionID           string `json:"session_id"`
	Timestamp           string `json:"timestamp"`
	Model               string `json:"model"`
	InputTokens         int    `json:"input_tokens"`
	OutputTokens        int    `json:"output_tokens"`
	CacheCreationTokens int    `json:"cache_creation_tokens"`
	CacheReadTokens     int    `json:"cache_read_tokens"`
}

type uploadResponse struct {
	Success  bool   `json:"success"`
	Inserted int64  `json:"inserted,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewClient creates an upload client for the given server.
func NewClient(server, apiKey string, batchSize int, timeout time.Duration) *Client {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	return &Client{
		server:     server,
		apiKey:     apiKey,
		clientID:   uuid.NewString(),
		clientName: hostname,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload sends the records of one completed parse in batches. Stats
// accompany the final batch only, so the server sees one rollup per
// source per run.
func (c *Client) Upload(ctx context.Context, source models.SourceType, records []models.UsageRecord, stats *models.UsageStats) error {
	for start := 0; start < len(records); start += c.batchSize {
		end := start + c.batchSize
		if end > len(records) {
			end = len(records)
		}

		req := uploadRequest{
			ClientID:   c.clientID,
			ClientName: c.clientName,
			Source:     string(source),
			Records:    convertRecords(records[start:end]),
		}
		if end == len(records) {
			req.Stats = stats
		}

		if err := c.send(ctx, req); err != nil {
			return fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, payload uploadRequest) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode upload payload: %w", err)
	}

	url := c.server + "/api/v1/usage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var result uploadResponse
	if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode server response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("server rejected upload: %s", result.Error)
	}
	return nil
}

func convertRecords(records []models.UsageRecord) []uploadRecord {
	out := make([]uploadRecord, len(records))
	for i, r := range records {
		out[i] = uploadRecord{
			ID:                  r.ID,
			SessionID:           r.SessionID,
			Timestamp:           r.TimestampKey(),
			Model:               r.Model,
			InputTokens:         r.InputTokens,
			OutputTokens:        r.OutputTokens,
			CacheCreationTokens: r.CacheCreationTokens,
			CacheReadTokens:     r.CacheReadTokens,
		}
	}
	return out
}
