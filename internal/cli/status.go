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
	"github.com/vietddude/sheetmerge/internal/core/domain"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent runs",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	if err := showStatus(); err != nil {
		os.Exit(1)
	}
}

// showStatus prints recent runs. Resources are released before it returns.
func showStatus() error {
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

	reports, err := stores.Runs.List(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to list runs", "error", err)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tOK\tEMPTY\tSKIPPED\tROWS\tWRITTEN\tERROR")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%t\t%s\n",
			r.ID,
			r.StartedAt.Format(time.RFC3339),
			r.Duration().Round(time.Second),
			r.Count(domain.OutcomeSucceeded),
			r.Count(domain.OutcomeEmpty),
			len(r.SkippedTitles()),
			r.CombinedRows,
			r.Written,
			r.Error,
		)
	}
	_ = w.Flush()
	return nil
}
