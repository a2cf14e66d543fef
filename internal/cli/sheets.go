package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/sheetmerge/internal/control"
)

var sheetsCmd = &cobra.Command{
	Use:   "sheets",
	Short: "List the worksheets of the configured spreadsheet",
	Run:   runSheets,
}

func init() {
	rootCmd.AddCommand(sheetsCmd)
}

func runSheets(cmd *cobra.Command, args []string) {
	if err := showSheets(); err != nil {
		os.Exit(1)
	}
}

// showSheets prints the worksheet titles. Resources are released before it returns.
func showSheets() error {
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

	app := control.NewApp(cfg, source, nil, control.Options{}, slog.Default())
	title, titles, err := app.Titles(ctx)
	if err != nil {
		slog.Error("Failed to list worksheets", "error", err)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "SPREADSHEET\t%s\n", title)
	_, _ = fmt.Fprintln(w, "#\tWORKSHEET\tROLE")
	for i, t := range titles {
		role := "input"
		if t == cfg.Output.Worksheet {
			role = "output"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, t, role)
	}
	_ = w.Flush()
	return nil
}
