package sources

import (
	"sort"

	"github.com/codetally/codetally/checkpoint"
	"github.com/codetally/codetally/models"
)

// progressInterval is how many processed items pass between progress
// callback invocations. Firing per item is too chatty on large trees.
const progressInterval = 100

// ProgressFunc receives scan progress for UI feedback. It is
// fire-and-forget; its return is never consumed and it carries no
// ordering guarantee.
type ProgressFunc func(processed, total int)

// Options tunes a parse pass.
type Options struct {
	// Limit caps the number of records produced; 0 means unlimited.
	// Reaching the cap short-circuits the scan cleanly and yields a
	// valid partial result.
	Limit int

	// Progress, if set, is invoked every progressInterval processed items.
	Progress ProgressFunc
}

// ParseError describes a single item-level failure collected during a
// scan, or the source-level failure that made the whole source unusable.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Result is the outcome of a full scan. Parsers always return a result
// value; failure is expressed through Errors, never through a panic or
// an error return. A source that is missing or unopenable yields a
// result with zero records and one Errors entry, which callers must
// treat the same as "tool not installed".
type Result struct {
	Source         models.SourceType    `json:"source"`
	Records        []models.UsageRecord `json:"records"`
	Stats          *models.UsageStats   `json:"stats"`
	FilesProcessed int                  `json:"files_processed"`
	Errors         []ParseError         `json:"errors,omitempty"`
}

// IncrementalResult extends Result with the replacement checkpoint.
type IncrementalResult struct {
	Result

	// Checkpoint replaces the caller's previous checkpoint wholesale.
	Checkpoint *checkpoint.Checkpoint `json:"checkpoint"`

	// IsIncremental is true iff a previous checkpoint was supplied at
	// all. It signals "not a first-ever run", not "work was skipped".
	IsIncremental bool `json:"is_incremental"`

	// SkippedFiles counts files carried forward unchanged (tree), or 1
	// when an unchanged database skipped the whole source.
	SkippedFiles int `json:"skipped_files"`
}

// Parser is the uniform contract every vendor source implements. The
// tree and database variants are fundamentally different diff
// algorithms behind this one interface.
type Parser interface {
	// Source identifies the vendor tool.
	Source() models.SourceType

	// Exists cheaply checks whether the vendor's expected storage
	// location is present for the current OS. It returns false on any
	// uncertainty rather than blocking or failing.
	Exists() bool

	// Parse performs a full scan, ignoring any checkpoint.
	Parse(opts Options) *Result

	// ParseIncremental consults prev to skip unchanged data. A nil
	// prev behaves like Parse and marks the result as a first run.
	ParseIncremental(prev *checkpoint.Checkpoint, opts Options) *IncrementalResult
}

// Registry returns the static set of known parsers keyed by source
// name. Parsers do not self-register; this is the single place a new
// vendor gets wired in.
func Registry() map[string]Parser {
	parsers := []Parser{
		NewClaudeCode(),
		NewOpenCode(),
		NewCursor(),
	}
	out := make(map[string]Parser, len(parsers))
	for _, p := range parsers {
		out[string(p.Source())] = p
	}
	return out
}

// Names returns the registered source names in stable order.
func Names() []string {
	reg := Registry()
	names := make([]string, 0, len(reg))
	for name := range reg {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sourceUnavailable builds the uniform "source unusable" result: zero
// records, empty stats, one collected error.
func sourceUnavailable(source models.SourceType, path, message string) Result {
	return Result{
		Source: source,
		Stats:  emptyStats(),
		Errors: []ParseError{{Path: path, Message: message}},
	}
}

func emptyStats() *models.UsageStats {
	return &models.UsageStats{
		ByModel: make(map[string]models.ModelStat),
		ByDate:  make(map[string]models.DateStat),
	}
}

func reportProgress(fn ProgressFunc, processed, total int) {
	if fn != nil && (processed%progressInterval == 0 || processed == total) {
		fn(processed, total)
	}
}
