package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/codetally/codetally/logging"
	"github.com/codetally/codetally/models"
	"github.com/codetally/codetally/sources"
)

// Uploader forwards a completed parse to the remote service. The core
// has no network dependency; a nil uploader turns a run into a local
// dry scan.
type Uploader interface {
	Upload(ctx context.Context, source models.SourceType, records []models.UsageRecord, stats *models.UsageStats) error
}

// Outcome summarizes one source's run for reporting.
type Outcome struct {
	Source         models.SourceType
	Available      bool
	Records        int
	FilesProcessed int
	SkippedFiles   int
	IsIncremental  bool
	Uploaded       bool
	Stats          *models.UsageStats
	Errors         []sources.ParseError
	UploadErr      error
}

// Orchestrator drives the sync flow: for each enabled source, load the
// stored checkpoint, parse incrementally, forward the records, and
// persist the replacement checkpoint.
type Orchestrator struct {
	parsers  []sources.Parser
	store    *CheckpointStore
	uploader Uploader
}

// New assembles an orchestrator over the given parsers. store is
// required; uploader may be nil for offline runs.
func New(parsers []sources.Parser, store *CheckpointStore, uploader Uploader) *Orchestrator {
	return &Orchestrator{
		parsers:  parsers,
		store:    store,
		uploader: uploader,
	}
}

// Run scans all sources and returns one outcome per source. Sources
// have disjoint storage locations and checkpoint keys, so they run
// concurrently without coordination. Per-source failures never fail
// the run; they surface in the outcome.
func (o *Orchestrator) Run(ctx context.Context, opts sources.Options) []Outcome {
	outcomes := make([]Outcome, len(o.parsers))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range o.parsers {
		g.Go(func() error {
			outcomes[i] = o.runSource(ctx, p, opts)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) runSource(ctx context.Context, p sources.Parser, opts sources.Options) Outcome {
	name := string(p.Source())
	outcome := Outcome{Source: p.Source()}

	if !p.Exists() {
		logging.LogDebugf("Source %s not present, skipping", name)
		return outcome
	}
	outcome.Available = true

	prev := o.store.Load(name)
	res := p.ParseIncremental(prev, opts)

	outcome.Records = len(res.Records)
	outcome.FilesProcessed = res.FilesProcessed
	outcome.SkippedFiles = res.SkippedFiles
	outcome.IsIncremental = res.IsIncremental
	outcome.Stats = res.Stats
	outcome.Errors = res.Errors

	logging.LogInfof("Source %s: %d records, %d files processed, %d skipped, %d errors",
		name, len(res.Records), res.FilesProcessed, res.SkippedFiles, len(res.Errors))

	if o.uploader != nil && len(res.Records) > 0 {
		if err := o.uploader.Upload(ctx, p.Source(), res.Records, res.Stats); err != nil {
			// The checkpoint is not persisted on upload failure so the
			// same records are collected and re-sent on the next run.
			logging.LogErrorf("Upload failed for %s, checkpoint not advanced: %v", name, err)
			outcome.UploadErr = err
			return outcome
		}
		outcome.Uploaded = true
	}

	if err := o.store.Save(name, res.Checkpoint); err != nil {
		logging.LogErrorf("Failed to persist checkpoint for %s: %v", name, err)
		outcome.Errors = append(outcome.Errors, sources.ParseError{Message: err.Error()})
	}
	return outcome
}
