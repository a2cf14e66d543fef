package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/sheetmerge/internal/core/config"
	"github.com/vietddude/sheetmerge/internal/core/domain"
	"github.com/vietddude/sheetmerge/internal/infra/archive"
	"github.com/vietddude/sheetmerge/internal/infra/retry"
	"github.com/vietddude/sheetmerge/internal/infra/sheets"
	"github.com/vietddude/sheetmerge/internal/ingest"
	"github.com/vietddude/sheetmerge/internal/ingest/health"
	"github.com/vietddude/sheetmerge/internal/ingest/merge"
	"github.com/vietddude/sheetmerge/internal/ingest/metrics"
	"github.com/vietddude/sheetmerge/internal/ingest/normalize"
)

// App runs one ingestion: read, clean, merge, write.
type App struct {
	cfg        *config.AppConfig
	source     sheets.Source
	policy     *retry.Policy
	scheduler  *ingest.Scheduler
	normalizer *normalize.Normalizer
	stores     *Stores
	archiver   *archive.Archiver
	monitor    *health.Monitor
	server     *health.Server
	runID      string
	dryRun     bool
	log        *slog.Logger
}

// Options tweaks a single run.
type Options struct {
	DryRun bool
	// Archiver overrides the one built from the archive config.
	Archiver *archive.Archiver
}

// NewApp wires the pipeline around source.
func NewApp(cfg *config.AppConfig, source sheets.Source, stores *Stores, opts Options, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	if stores == nil {
		stores = MemoryStores()
	}

	policy := retry.New(cfg.Retry.Call, retry.ClassifyError, log)
	policy.OnRetry = func(op string, attempt int, err error) {
		metrics.CallRetriesTotal.WithLabelValues(op).Inc()
	}

	normalizer := normalize.New(cfg.Normalize(), log)

	scheduler := ingest.NewScheduler(cfg.Retry.Rounds, source, policy, normalizer.MissingColumns, log)
	scheduler.Exclude(cfg.Output.Worksheet)

	runID := uuid.NewString()
	monitor := health.NewMonitor(runID, stores.Failed)
	scheduler.OnOutcome = monitor.Observe
	if api, ok := source.(health.APIStatter); ok {
		monitor.SetAPI(api)
	}

	a := &App{
		cfg:        cfg,
		source:     source,
		policy:     policy,
		scheduler:  scheduler,
		normalizer: normalizer,
		stores:     stores,
		archiver:   opts.Archiver,
		monitor:    monitor,
		runID:      runID,
		dryRun:     opts.DryRun,
		log:        log.With("component", "app", "run_id", runID),
	}
	if cfg.Server.Port > 0 {
		a.server = health.NewServer(monitor, cfg.Server.Port)
	}
	return a
}

// RunID returns the id the next report will carry.
func (a *App) RunID() string {
	return a.runID
}

// Monitor exposes the run's health monitor.
func (a *App) Monitor() *health.Monitor {
	return a.monitor
}

// Titles lists every worksheet of the spreadsheet, the output one included.
func (a *App) Titles(ctx context.Context) (string, []string, error) {
	title, err := a.open(ctx)
	if err != nil {
		return "", nil, err
	}
	titles, err := retry.Value(ctx, a.policy, "titles", a.source.Titles)
	if err != nil {
		return "", nil, fmt.Errorf("failed to list worksheets: %w", err)
	}
	return title, titles, nil
}

// Run executes the pipeline. When a server port is configured, the health
// and metrics endpoints are served until the run finishes. A server that
// cannot start is logged and the run goes on without it.
func (a *App) Run(ctx context.Context) (*domain.RunReport, error) {
	if a.server == nil {
		return a.run(ctx)
	}

	var report *domain.RunReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("Health server listening", "port", a.cfg.Server.Port)
		if err := a.server.Start(); err != nil {
			a.log.Error("Health server failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.server.Stop(stopCtx); err != nil {
				a.log.Warn("Failed to stop health server", "error", err)
			}
		}()
		var err error
		report, err = a.run(gctx)
		return err
	})
	err := g.Wait()
	return report, err
}

func (a *App) run(ctx context.Context) (*domain.RunReport, error) {
	report := &domain.RunReport{
		ID:              a.runID,
		OutputWorksheet: a.cfg.Output.Worksheet,
		StartedAt:       time.Now(),
	}
	a.log.Info("Starting run")

	title, err := a.open(ctx)
	if err != nil {
		return report, a.fail(ctx, report, err)
	}
	report.Spreadsheet = title
	a.log.Info("Opened spreadsheet", "title", title)

	a.monitor.SetPhase(health.PhaseIngesting)
	res, err := a.scheduler.Run(ctx)
	if err != nil {
		return report, a.fail(ctx, report, err)
	}

	a.monitor.SetPhase(health.PhaseMerging)
	tables := a.clean(report, res)
	combined, dups := merge.Merge(tables...)
	report.CombinedRows = len(combined)
	report.DuplicatesRemoved = dups
	metrics.RowsDroppedTotal.WithLabelValues("merge").Add(float64(dups))
	a.log.Info("Merged sheets",
		"sheets", len(tables), "rows", len(combined), "duplicates_removed", dups)

	switch {
	case len(tables) == 0:
		a.log.Warn("No valid data found in any sheet, nothing written")
	case a.dryRun:
		a.log.Info("Dry run, skipping output write", "rows", len(combined))
	default:
		a.monitor.SetPhase(health.PhaseWriting)
		if err := a.writeOutput(ctx, combined); err != nil {
			return report, a.fail(ctx, report, err)
		}
		report.Written = true
		metrics.RecordsWritten.Set(float64(len(combined)))
		a.log.Info("Wrote combined data", "worksheet", a.cfg.Output.Worksheet, "rows", len(combined))
	}

	if len(tables) > 0 {
		a.archive(ctx, combined)
	}
	a.finish(ctx, report)
	a.monitor.SetPhase(health.PhaseDone)

	if skipped := report.SkippedTitles(); len(skipped) > 0 {
		a.log.Warn("Some sheets were skipped", "sheets", skipped)
	}
	a.log.Info("Run finished", "duration", report.Duration().Round(time.Millisecond))
	return report, nil
}

func (a *App) open(ctx context.Context) (string, error) {
	title, err := retry.Value(ctx, a.policy, "open", a.source.Open)
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	return title, nil
}

// clean normalizes every succeeded worksheet and fills the per-sheet results.
func (a *App) clean(report *domain.RunReport, res *ingest.Result) [][]domain.Record {
	cleaned := make(map[string][]domain.Record, len(res.Order))
	rowsRead := make(map[string]int, len(res.Order))
	for _, title := range res.Order {
		records, stats := a.normalizer.Normalize(title, res.Tables[title])
		metrics.RowsDroppedTotal.WithLabelValues("status").Add(float64(stats.DroppedByStatus))
		metrics.RowsDroppedTotal.WithLabelValues("exclude").Add(float64(stats.DroppedByExclude))
		metrics.RowsDroppedTotal.WithLabelValues("duplicate").Add(float64(stats.DuplicatesRemoved))
		metrics.NamesFilledTotal.Add(float64(stats.NamesFilled))
		cleaned[title] = records
		rowsRead[title] = stats.RowsRead
	}

	var tables [][]domain.Record
	for _, st := range res.States {
		result := domain.SheetResult{
			Title:    st.Title,
			Outcome:  st.Outcome,
			Attempts: st.Attempts,
		}
		if st.Err != nil {
			result.Error = st.Err.Error()
		}
		if st.Outcome == domain.OutcomeSucceeded {
			result.RowsRead = rowsRead[st.Title]
			result.RecordsKept = len(cleaned[st.Title])
			if len(cleaned[st.Title]) == 0 {
				a.log.Warn("Sheet is empty after cleaning, excluding from merge", "sheet", st.Title)
			} else {
				tables = append(tables, cleaned[st.Title])
			}
		}
		report.Sheets = append(report.Sheets, result)
	}
	return tables
}

func (a *App) archive(ctx context.Context, records []domain.Record) {
	if a.archiver == nil {
		return
	}
	key, err := a.archiver.Archive(ctx, a.runID, records)
	if err != nil {
		a.log.Warn("Failed to archive combined data", "error", err)
		return
	}
	a.log.Info("Archived combined data", "key", key)
}

// fail records a run-level failure and persists what is known so far.
func (a *App) fail(ctx context.Context, report *domain.RunReport, err error) error {
	report.Error = err.Error()
	a.monitor.Fail(err)
	a.log.Error("Run failed", "error", err)
	if !errors.Is(err, context.Canceled) {
		a.finish(ctx, report)
	}
	return err
}

// finish updates the failed-sheet ledger and saves the report.
func (a *App) finish(ctx context.Context, report *domain.RunReport) {
	report.FinishedAt = time.Now()
	metrics.RunDuration.Observe(report.Duration().Seconds())

	for _, s := range report.Sheets {
		var err error
		switch {
		case s.Outcome.Skipped():
			err = a.stores.Failed.Add(ctx, &domain.FailedSheet{
				Title:     s.Title,
				Outcome:   s.Outcome,
				Error:     s.Error,
				LastRunID: report.ID,
			})
		case s.Outcome.Terminal():
			err = a.stores.Failed.MarkResolved(ctx, s.Title)
		}
		if err != nil {
			a.log.Warn("Failed to update failed sheet ledger", "sheet", s.Title, "error", err)
		}
	}

	if err := a.stores.Runs.Save(ctx, report); err != nil {
		a.log.Warn("Failed to save run report", "error", err)
	}
}
