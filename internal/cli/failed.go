package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/sheetmerge/internal/control"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Show worksheets that recent runs had to skip",
	Run:   runFailed,
}

func init() {
	rootCmd.AddCommand(failedCmd)
}

func runFailed(cmd *cobra.Command, args []string) {
	if err := showFailed(); err != nil {
		os.Exit(1)
	}
}

// showFailed prints the ledger. Resources are released before it returns.
func showFailed() error {
	cfg := loadConfig()
	closeLog := setupLogging(cfg)
	defer func() {
		_ = closeLog()
	}()

	ctx := context.Background()
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

	sheets, err := stores.Failed.GetAll(ctx)
	if err != nil {
		slog.Error("Failed to read failed sheets", "error", err)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "WORKSHEET\tOUTCOME\tFAILURES\tLAST RUN\tLAST FAILED\tERROR")
	for _, fs := range sheets {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			fs.Title,
			fs.Outcome,
			fs.FailureCount,
			fs.LastRunID,
			time.Unix(fs.LastFailedAt, 0).Format(time.RFC3339),
			fs.Error,
		)
	}
	_ = w.Flush()
	return nil
}
