// Package ingest reads every worksheet of a spreadsheet despite transient
// failures, one round at a time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/sheetmerge/internal/core/domain"
	"github.com/vietddude/sheetmerge/internal/infra/sheets"
	"github.com/vietddude/sheetmerge/internal/ingest/metrics"
)

// Config bounds the worksheet-level retry rounds.
type Config struct {
	MaxRounds  int           `yaml:"max_rounds"`
	RoundDelay time.Duration `yaml:"round_delay"`
}

// DefaultConfig gives every worksheet three rounds, ten seconds apart.
var DefaultConfig = Config{
	MaxRounds:  3,
	RoundDelay: 10 * time.Second,
}

// ErrMissingColumns marks a worksheet whose header lacks a required column.
var ErrMissingColumns = errors.New("missing required columns")

// Retrier runs a single remote call with its own retry policy.
type Retrier interface {
	Do(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Result holds the worksheets that were read successfully.
type Result struct {
	// Tables maps a worksheet title to its raw contents.
	Tables map[string]domain.RawTable
	// Order lists the titles in Tables in enumeration order.
	Order []string
	// States has one entry per enumerated worksheet, in enumeration order.
	States []*domain.AttemptState
}

// Scheduler drives round-based reads over a set of worksheets.
type Scheduler struct {
	cfg      Config
	source   sheets.Source
	retrier  Retrier
	missing  ColumnCheck
	exclude  map[string]struct{}
	log      *slog.Logger

	// OnOutcome, if set, is called whenever a worksheet reaches a terminal outcome.
	OnOutcome func(title string, o domain.Outcome)
}

// ColumnCheck returns the required columns a table's header lacks.
type ColumnCheck func(t domain.RawTable) []string

// NewScheduler creates a Scheduler. missing decides whether a worksheet's
// header is usable; nil accepts every header.
func NewScheduler(
	cfg Config,
	source sheets.Source,
	retrier Retrier,
	missing ColumnCheck,
	log *slog.Logger,
) *Scheduler {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		source:   source,
		retrier:  retrier,
		missing:  missing,
		exclude:  make(map[string]struct{}),
		log:      log.With("component", "ingest"),
	}
}

// Exclude prevents titles from being read, e.g. the output worksheet.
func (s *Scheduler) Exclude(titles ...string) {
	for _, t := range titles {
		s.exclude[t] = struct{}{}
	}
}

// Titles enumerates the worksheets to read, minus excluded ones.
func (s *Scheduler) Titles(ctx context.Context) ([]string, error) {
	var all []string
	err := s.retrier.Do(ctx, "titles", func(ctx context.Context) error {
		var err error
		all, err = s.source.Titles(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list worksheets: %w", err)
	}

	titles := make([]string, 0, len(all))
	for _, t := range all {
		if _, skip := s.exclude[t]; skip {
			s.log.Info("Excluding worksheet from input", "sheet", t)
			continue
		}
		titles = append(titles, t)
	}
	return titles, nil
}

// Run enumerates the worksheets and reads them all. It only fails when the
// worksheets cannot be listed or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) (*Result, error) {
	titles, err := s.Titles(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("Found worksheets", "count", len(titles))
	return s.Read(ctx, titles)
}

// Read reads the given worksheets until each one has a terminal outcome.
func (s *Scheduler) Read(ctx context.Context, titles []string) (*Result, error) {
	res := &Result{
		Tables: make(map[string]domain.RawTable),
		States: make([]*domain.AttemptState, len(titles)),
	}
	pending := make([]int, len(titles))
	for i, t := range titles {
		res.States[i] = &domain.AttemptState{Title: t, Outcome: domain.OutcomePending}
		pending[i] = i
	}

	for round := 1; len(pending) > 0; round++ {
		metrics.RoundsTotal.Inc()
		s.log.Info("Starting read round", "round", round, "sheets", len(pending))

		var retry []int
		for _, i := range pending {
			st := res.States[i]
			st.Attempts++
			s.log.Info("Reading sheet",
				"sheet", st.Title, "attempt", st.Attempts, "max_attempts", s.cfg.MaxRounds)

			table, err := s.fetch(ctx, st.Title)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if err != nil {
				metrics.FetchAttemptsTotal.WithLabelValues("failure").Inc()
				st.Err = err
				if st.Attempts >= s.cfg.MaxRounds {
					st.Outcome = domain.OutcomeExhausted
					s.observe(st)
					s.log.Error("Sheet failed on every attempt, skipping permanently",
						"sheet", st.Title, "attempts", st.Attempts, "error", err)
					continue
				}
				s.log.Warn("Sheet read failed, queued for next round",
					"sheet", st.Title, "attempt", st.Attempts, "error", err)
				retry = append(retry, i)
				continue
			}

			metrics.FetchAttemptsTotal.WithLabelValues("success").Inc()
			s.resolve(res, st, table)
			s.observe(st)
		}

		pending = retry
		if len(pending) == 0 {
			s.log.Info("All sheets read or permanently skipped", "rounds", round)
			break
		}

		s.log.Info("Sheets will be re-attempted after delay",
			"retrying", titlesOf(res.States, pending),
			"skipped", skippedTitles(res.States),
			"delay", s.cfg.RoundDelay,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.RoundDelay):
		}
	}

	for _, st := range res.States {
		if st.Outcome == domain.OutcomeSucceeded {
			res.Order = append(res.Order, st.Title)
		}
	}
	return res, nil
}

// resolve assigns the terminal outcome of a successful fetch.
func (s *Scheduler) resolve(res *Result, st *domain.AttemptState, table domain.RawTable) {
	if len(table.Rows) == 0 {
		st.Outcome = domain.OutcomeEmpty
		s.log.Info("Skipping empty sheet", "sheet", st.Title)
		return
	}

	if missing := s.missingColumns(table); len(missing) > 0 {
		st.Outcome = domain.OutcomeInvalid
		st.Err = fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
		s.log.Warn("Sheet is missing mandatory columns, skipping",
			"sheet", st.Title, "missing", missing)
		return
	}

	if len(table.DataRows()) == 0 {
		st.Outcome = domain.OutcomeEmpty
		s.log.Info("Skipping sheet without data rows", "sheet", st.Title)
		return
	}

	st.Outcome = domain.OutcomeSucceeded
	st.Err = nil
	res.Tables[st.Title] = table
	s.log.Info("Read sheet", "sheet", st.Title, "rows", len(table.DataRows()))
}

func (s *Scheduler) observe(st *domain.AttemptState) {
	metrics.WorksheetsTotal.WithLabelValues(string(st.Outcome)).Inc()
	if s.OnOutcome != nil {
		s.OnOutcome(st.Title, st.Outcome)
	}
}

func (s *Scheduler) fetch(ctx context.Context, title string) (domain.RawTable, error) {
	var ws domain.Worksheet
	err := s.retrier.Do(ctx, "worksheet", func(ctx context.Context) error {
		var err error
		ws, err = s.source.Worksheet(ctx, title)
		return err
	})
	if err != nil {
		return domain.RawTable{}, err
	}

	var table domain.RawTable
	err = s.retrier.Do(ctx, "values", func(ctx context.Context) error {
		var err error
		table, err = s.source.Values(ctx, ws)
		return err
	})
	return table, err
}

func (s *Scheduler) missingColumns(t domain.RawTable) []string {
	if s.missing == nil {
		return nil
	}
	return s.missing(t)
}

func titlesOf(states []*domain.AttemptState, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = states[j].Title
	}
	return out
}

func skippedTitles(states []*domain.AttemptState) []string {
	var out []string
	for _, st := range states {
		if st.Outcome.Skipped() {
			out = append(out, st.Title)
		}
	}
	return out
}
