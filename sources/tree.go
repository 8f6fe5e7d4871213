package sources

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/codetally/codetally/calculations"
	"github.com/codetally/codetally/checkpoint"
	"github.com/codetally/codetally/models"
)

// fileDecoder turns one event file into zero or more usage records.
// Returning an error marks the file in the result's Errors list; the
// scan continues with the next file either way.
type fileDecoder func(path string) ([]models.UsageRecord, error)

// treeParser is the shared implementation of the tree-based variant:
// vendors that store events as individual files under a directory
// hierarchy. The diff rule is per file: an unchanged (mtime, size) pair
// skips the file and carries its checkpoint entry forward verbatim.
type treeParser struct {
	source models.SourceType
	ext    string
	roots  func() []string
	decode fileDecoder
}

func (t *treeParser) Source() models.SourceType {
	return t.source
}

// Exists checks whether any candidate root is present. Uncertainty
// (permission errors, unreadable mounts) reads as absent.
func (t *treeParser) Exists() bool {
	for _, root := range t.roots() {
		if info, err := os.Stat(root); err == nil && info.IsDir() {
			return true
		}
	}
	return false
}

func (t *treeParser) Parse(opts Options) *Result {
	res := t.scan(nil, opts)
	return &res.Result
}

func (t *treeParser) ParseIncremental(prev *checkpoint.Checkpoint, opts Options) *IncrementalResult {
	return t.scan(prev, opts)
}

func (t *treeParser) scan(prev *checkpoint.Checkpoint, opts Options) *IncrementalResult {
	res := &IncrementalResult{
		Result:        Result{Source: t.source},
		IsIncremental: prev != nil,
	}

	files := t.listFiles()
	if files == nil {
		// No candidate root exists at all. Indistinguishable from the
		// tool not being installed; the previous checkpoint is kept so
		// a transient mount failure does not force a full rescan.
		res.Result = sourceUnavailable(t.source, t.primaryRoot(), "no usage data directory found")
		if prev != nil {
			res.Checkpoint = prev.Clone()
		} else {
			res.Checkpoint = checkpoint.NewTree()
		}
		res.Checkpoint.LastSyncedAt = time.Now().UTC()
		return res
	}

	cp := checkpoint.NewTree()
	total := len(files)
	processed := 0

	for _, path := range files {
		if opts.Limit > 0 && len(res.Records) >= opts.Limit {
			break
		}

		info, err := os.Stat(path)
		if err != nil {
			res.Errors = append(res.Errors, ParseError{Path: path, Message: err.Error()})
			continue
		}

		processed++
		res.FilesProcessed++

		if prev.MatchesFile(path, info) {
			cp.Files[path] = prev.Files[path]
			res.SkippedFiles++
			reportProgress(opts.Progress, processed, total)
			continue
		}

		records, err := t.decode(path)
		if err != nil {
			res.Errors = append(res.Errors, ParseError{Path: path, Message: err.Error()})
			reportProgress(opts.Progress, processed, total)
			continue
		}

		kept := records[:0]
		for _, r := range records {
			if !r.HasUsage() {
				continue
			}
			r.Source = t.source
			kept = append(kept, r)
		}

		if opts.Limit > 0 && len(res.Records)+len(kept) > opts.Limit {
			// The file was only partially consumed; leaving it out of
			// the new checkpoint makes the next run read it again.
			kept = kept[:opts.Limit-len(res.Records)]
			res.Records = append(res.Records, kept...)
			reportProgress(opts.Progress, processed, total)
			break
		}

		res.Records = append(res.Records, kept...)
		cp.RecordFile(path, info)
		reportProgress(opts.Progress, processed, total)
	}

	// A scan that skipped every file and evicted nothing carries the
	// previous checkpoint forward verbatim.
	if prev != nil && len(res.Records) == 0 && len(res.Errors) == 0 &&
		res.SkippedFiles == res.FilesProcessed && len(cp.Files) == len(prev.Files) {
		res.Checkpoint = prev.Clone()
		res.Stats = emptyStats()
		return res
	}

	cp.LastSyncedAt = time.Now().UTC()
	res.Checkpoint = cp
	res.Stats = calculations.ComputeStats(res.Records)
	return res
}

// listFiles enumerates event files with the recognized extension under
// every existing candidate root, in deterministic order. It returns nil
// when no root exists at all; an existing but empty root returns an
// empty non-nil slice.
func (t *treeParser) listFiles() []string {
	var files []string
	found := false

	for _, root := range t.roots() {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			continue
		}
		found = true
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtrees are skipped, not fatal
			}
			if !d.IsDir() && filepath.Ext(path) == t.ext {
				files = append(files, path)
			}
			return nil
		})
	}

	if !found {
		return nil
	}
	sort.Strings(files)
	if files == nil {
		files = []string{}
	}
	return files
}

func (t *treeParser) primaryRoot() string {
	roots := t.roots()
	if len(roots) == 0 {
		return ""
	}
	return roots[0]
}
