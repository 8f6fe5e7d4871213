package models

import (
	"time"
)

// SourceType identifies the vendor tool a usage record originated from.
type SourceType string

const (
	SourceClaudeCode SourceType = "claude-code"
	SourceOpenCode   SourceType = "opencode"
	SourceCursor     SourceType = "cursor"
)

// UnknownModel is the sentinel model name used when a record's model
// cannot be resolved from the vendor data.
const UnknownModel = "unknown"

// DateFormat is the ISO calendar-date layout used for by-date bucketing.
const DateFormat = "2006-01-02"

// UsageRecord represents a single normalized token usage event from any source
type UsageRecord struct {
	ID                  string     `json:"id"`
	SessionID           string     `json:"session_id"`
	Source              SourceType `json:"source"`
	Model               string     `json:"model"`
	Timestamp           time.Time  `json:"timestamp"`
	InputTokens         int        `json:"input_tokens"`
	OutputTokens        int        `json:"output_tokens"`
	CacheCreationTokens int        `json:"cache_creation_tokens"`
	CacheReadTokens     int        `json:"cache_read_tokens"`
}

// TotalTokens calculates the total tokens for a usage record
func (r *UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens + r.CacheCreationTokens + r.CacheReadTokens
}

// HasUsage reports whether the record carries any token signal. Records
// where this is false are dropped at the parser boundary.
func (r *UsageRecord) HasUsage() bool {
	return r.InputTokens > 0 || r.OutputTokens > 0 ||
		r.CacheCreationTokens > 0 || r.CacheReadTokens > 0
}

// DateKey returns the UTC calendar date of the record's timestamp,
// used as the by-date aggregation bucket.
func (r *UsageRecord) DateKey() string {
	return r.Timestamp.UTC().Format(DateFormat)
}

// TimestampKey returns the record timestamp as a normalized RFC3339 UTC
// string. These strings sort lexicographically in chronological order,
// which checkpoint bookkeeping relies on.
func (r *UsageRecord) TimestampKey() string {
	return r.Timestamp.UTC().Format(time.RFC3339)
}

// ModelStat contains aggregated statistics for a specific model
type ModelStat struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	MessageCount        int `json:"message_count"`
}

// DateStat contains aggregated statistics for a single UTC calendar date
type DateStat struct {
	InputTokens         int `json:"input_tokens"`
	OutputTokens        int `json:"output_tokens"`
	CacheCreationTokens int `json:"cache_creation_tokens"`
	CacheReadTokens     int `json:"cache_read_tokens"`
	MessageCount        int `json:"message_count"`
	SessionCount        int `json:"session_count"`
}

// UsageStats is the rollup produced alongside the records of a single
// parse pass. Sub-totals in ByModel and ByDate always sum to the
// top-level totals for the same record list.
type UsageStats struct {
	TotalInputTokens         int                  `json:"total_input_tokens"`
	TotalOutputTokens        int                  `json:"total_output_tokens"`
	TotalCacheCreationTokens int                  `json:"total_cache_creation_tokens"`
	TotalCacheReadTokens     int                  `json:"total_cache_read_tokens"`
	MessageCount             int                  `json:"message_count"`
	SessionCount             int                  `json:"session_count"`
	ByModel                  map[string]ModelStat `json:"by_model"`
	ByDate                   map[string]DateStat  `json:"by_date"`
}

// TotalTokens returns the sum of all four token totals.
func (s *UsageStats) TotalTokens() int {
	return s.TotalInputTokens + s.TotalOutputTokens +
		s.TotalCacheCreationTokens + s.TotalCacheReadTokens
}
