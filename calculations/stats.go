package calculations

import (
	"github.com/codetally/codetally/models"
)

// ComputeStats folds a record list into aggregate usage statistics.
// It is a pure function over the records of a single parse pass; it
// never accumulates across passes.
//
// Token totals and message counts are accumulated record by record.
// Session counts are computed in a second pass because they count
// distinct session IDs: a session that contributes several records on
// the same date must only be counted once for that date.
func ComputeStats(records []models.UsageRecord) *models.UsageStats {
	stats := &models.UsageStats{
		ByModel: make(map[string]models.ModelStat),
		ByDate:  make(map[string]models.DateStat),
	}

	for _, r := range records {
		stats.TotalInputTokens += r.InputTokens
		stats.TotalOutputTokens += r.OutputTokens
		stats.TotalCacheCreationTokens += r.CacheCreationTokens
		stats.TotalCacheReadTokens += r.CacheReadTokens
		stats.MessageCount++

		model := r.Model
		if model == "" {
			model = models.UnknownModel
		}
		ms := stats.ByModel[model]
		ms.InputTokens += r.InputTokens
		ms.OutputTokens += r.OutputTokens
		ms.CacheCreationTokens += r.CacheCreationTokens
		ms.CacheReadTokens += r.CacheReadTokens
		ms.MessageCount++
		stats.ByModel[model] = ms

		date := r.DateKey()
		ds := stats.ByDate[date]
		ds.InputTokens += r.InputTokens
		ds.OutputTokens += r.OutputTokens
		ds.CacheCreationTokens += r.CacheCreationTokens
		ds.CacheReadTokens += r.CacheReadTokens
		ds.MessageCount++
		stats.ByDate[date] = ds
	}

	// Second pass: distinct sessions overall and per date.
	allSessions := make(map[string]struct{})
	sessionsByDate := make(map[string]map[string]struct{})

	for _, r := range records {
		allSessions[r.SessionID] = struct{}{}

		date := r.DateKey()
		if sessionsByDate[date] == nil {
			sessionsByDate[date] = make(map[string]struct{})
		}
		sessionsByDate[date][r.SessionID] = struct{}{}
	}

	stats.SessionCount = len(allSessions)
	for date, sessions := range sessionsByDate {
		ds := stats.ByDate[date]
		ds.SessionCount = len(sessions)
		stats.ByDate[date] = ds
	}

	return stats
}
