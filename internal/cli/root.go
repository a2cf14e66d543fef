package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/sheetmerge/internal/core/config"
	"github.com/vietddude/sheetmerge/internal/infra/sheets"
)

var (
	cfgPath     string
	isDebug     bool
	dryRun      bool
	sourceKind  string
	fixturePath string
)

var rootCmd = &cobra.Command{
	Use:   "sheetmerge",
	Short: "Merge and clean newsletter sheets",
	Long: `sheetmerge reads every worksheet of a spreadsheet, cleans the rows into
(name, email) records, removes duplicates and writes the combined list back
to an output worksheet.`,
	Run: runMerge,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&sourceKind, "source", "http", "worksheet source: http or memory")
	rootCmd.PersistentFlags().StringVar(&fixturePath, "fixture", "", "YAML file with worksheets for the memory source")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "read and clean, but do not write the output worksheet")
}

// loadConfig loads .env and the config file, exiting on failure.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		// Fall back to default logger for config load errors
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(sourceKind == "http"); err != nil {
		stylelog.InitDefault()
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}
	return cfg
}

// setupLogging installs the configured logger as the default one. The
// returned function closes the log file.
func setupLogging(cfg *config.AppConfig) func() error {
	level := config.ParseLevel(cfg.Logging.Level)
	if isDebug {
		level = slog.LevelDebug
	}

	logger, closeFn := config.SetupLogger(cfg.Logging.File, level)
	slog.SetDefault(logger)
	slog.Debug("Logger initialized", "level", level.String(), "file", cfg.Logging.File)
	return closeFn
}

// newSource builds the worksheet source selected by --source.
func newSource(cfg *config.AppConfig) (sheets.Source, error) {
	switch sourceKind {
	case "http":
		return sheets.NewHTTPSource(cfg.Source), nil
	case "memory":
		if fixturePath == "" {
			return nil, fmt.Errorf("--fixture is required with --source memory")
		}
		src, err := sheets.LoadFixture(fixturePath)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source %q", sourceKind)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
