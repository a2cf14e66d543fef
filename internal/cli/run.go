package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/sheetmerge/internal/control"
	"github.com/vietddude/sheetmerge/internal/core/domain"
	"github.com/vietddude/sheetmerge/internal/infra/archive"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Read, clean, merge and write the combined sheet",
	Run:   runMerge,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "read and clean, but do not write the output worksheet")
	rootCmd.AddCommand(runCmd)
}

func runMerge(cmd *cobra.Command, args []string) {
	if err := executeRun(); err != nil {
		os.Exit(1)
	}
}

// executeRun runs the pipeline once. Every resource it opens is released
// before it returns, so callers may exit right after.
func executeRun() error {
	cfg := loadConfig()
	closeLog := setupLogging(cfg)
	defer func() {
		_ = closeLog()
	}()

	source, err := newSource(cfg)
	if err != nil {
		slog.Error("Failed to create source", "error", err)
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	stores, err := control.OpenStores(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			slog.Warn("Failed to close storage", "error", err)
		}
	}()

	opts := control.Options{DryRun: dryRun}
	if cfg.Archive.Enabled() {
		opts.Archiver, err = archive.NewMinio(ctx, cfg.Archive)
		if err != nil {
			slog.Warn("Archive disabled", "error", err)
		}
	}

	app := control.NewApp(cfg, source, stores, opts, slog.Default())
	report, err := app.Run(ctx)
	if report != nil {
		slog.Info("Run summary",
			"run_id", report.ID,
			"succeeded", report.Count(domain.OutcomeSucceeded),
			"empty", report.Count(domain.OutcomeEmpty),
			"invalid", report.Count(domain.OutcomeInvalid),
			"exhausted", report.Count(domain.OutcomeExhausted),
			"rows", report.CombinedRows,
			"written", report.Written,
		)
	}
	return err
}
