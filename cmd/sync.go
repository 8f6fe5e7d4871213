package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codetally/codetally/orchestrator"
	"github.com/codetally/codetally/sources"
	syncclient "github.com/codetally/codetally/sync"
)

var (
	syncLimit  int
	syncDryRun bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Scan enabled sources and upload new usage records",
	Long: `Scan each enabled source incrementally against its stored checkpoint,
upload the new records to the configured server, and persist the updated
checkpoints.

With --dry-run nothing is uploaded and checkpoints still advance, which is
useful for seeding a fresh checkpoint store. A source whose upload fails
keeps its old checkpoint so its records are re-sent on the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd)
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "cap records collected per source (0 = unlimited)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "scan and advance checkpoints without uploading")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command) error {
	cfg, err := loadConfiguration()
	if err != nil {
		return err
	}

	store, err := orchestrator.OpenCheckpointStore(cfg.Checkpoints.Dir)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer store.Close()

	var uploader orchestrator.Uploader
	if cfg.SyncEnabled() && !syncDryRun {
		uploader = syncclient.NewClient(cfg.Sync.Server, cfg.Sync.APIKey, cfg.Sync.BatchSize, cfg.Sync.Timeout)
	} else if !syncDryRun {
		verbosef("No sync server configured; running local scan only")
	}

	parsers, err := enabledParsers(cfg.Sources.Enabled)
	if err != nil {
		return err
	}

	opts := sources.Options{Limit: syncLimit}
	if verbose {
		opts.Progress = func(processed, total int) {
			fmt.Fprintf(os.Stderr, "\rscanning... %d/%d", processed, total)
		}
	}

	orch := orchestrator.New(parsers, store, uploader)
	outcomes := orch.Run(context.Background(), opts)
	if verbose {
		fmt.Fprintln(os.Stderr)
	}

	var failed int
	for _, outcome := range outcomes {
		if !outcome.Available {
			verbosef("%s: not installed", outcome.Source)
			continue
		}

		status := "scanned"
		if outcome.Uploaded {
			status = "uploaded"
		}
		fmt.Printf("%s: %d records %s (%d files, %d unchanged)\n",
			outcome.Source, outcome.Records, status, outcome.FilesProcessed, outcome.SkippedFiles)

		for _, e := range outcome.Errors {
			verbosef("  error: %s: %s", e.Path, e.Message)
		}
		if outcome.UploadErr != nil {
			fmt.Fprintf(os.Stderr, "%s: upload failed: %v\n", outcome.Source, outcome.UploadErr)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d source(s) failed to upload", failed)
	}
	return nil
}

func enabledParsers(enabled []string) ([]sources.Parser, error) {
	registry := sources.Registry()
	parsers := make([]sources.Parser, 0, len(enabled))
	for _, name := range enabled {
		p, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown source %q (known: %v)", name, sources.Names())
		}
		parsers = append(parsers, p)
	}
	return parsers, nil
}
