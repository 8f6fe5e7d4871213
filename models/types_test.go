package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUsageRecordTotalTokens(t *testing.T) {
	record := UsageRecord{
		InputTokens:         100,
		OutputTokens:        50,
		CacheCreationTokens: 200,
		CacheReadTokens:     25,
	}
	assert.Equal(t, 375, record.TotalTokens())
}

func TestUsageRecordHasUsage(t *testing.T) {
	tests := []struct {
		name   string
		record UsageRecord
		want   bool
	}{
		{"all zero", UsageRecord{}, false},
		{"input only", UsageRecord{InputTokens: 1}, true},
		{"output only", UsageRecord{OutputTokens: 1}, true},
		{"cache creation only", UsageRecord{CacheCreationTokens: 1}, true},
		{"cache read only", UsageRecord{CacheReadTokens: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.HasUsage())
		})
	}
}

func TestUsageRecordDateKey(t *testing.T) {
	// The bucket date is the UTC calendar day, regardless of the
	// timestamp's original zone.
	ts, err := time.Parse(time.RFC3339, "2024-03-15T23:30:00-05:00")
	assert.NoError(t, err)

	record := UsageRecord{Timestamp: ts}
	assert.Equal(t, "2024-03-16", record.DateKey())
}

func TestUsageRecordTimestampKeySortsChronologically(t *testing.T) {
	earlier := UsageRecord{Timestamp: time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)}
	later := UsageRecord{Timestamp: time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC)}

	assert.Less(t, earlier.TimestampKey(), later.TimestampKey())
}

func TestUsageRecordValidate(t *testing.T) {
	valid := UsageRecord{
		ID:           "msg-1",
		SessionID:    "sess-1",
		Source:       SourceClaudeCode,
		Model:        "claude-sonnet-4",
		Timestamp:    time.Now(),
		InputTokens:  100,
		OutputTokens: 50,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *UsageRecord)
		field  string
	}{
		{"empty id", func(r *UsageRecord) { r.ID = "" }, "ID"},
		{"empty source", func(r *UsageRecord) { r.Source = "" }, "Source"},
		{"zero timestamp", func(r *UsageRecord) { r.Timestamp = time.Time{} }, "Timestamp"},
		{"empty model", func(r *UsageRecord) { r.Model = "" }, "Model"},
		{"negative input", func(r *UsageRecord) { r.InputTokens = -1 }, "InputTokens"},
		{"negative output", func(r *UsageRecord) { r.OutputTokens = -1 }, "OutputTokens"},
		{"no usage", func(r *UsageRecord) {
			r.InputTokens = 0
			r.OutputTokens = 0
		}, "Tokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := valid
			tt.mutate(&record)

			err := record.Validate()
			assert.Error(t, err)

			var verr ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
