package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/sheetmerge/internal/core/domain"
	"github.com/vietddude/sheetmerge/internal/infra/storage"
)

// RunRepo implements storage.RunRepository using PostgreSQL.
type RunRepo struct {
	db *DB
}

// NewRunRepo creates a new PostgreSQL run repository.
func NewRunRepo(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

type runRow struct {
	ID                string         `db:"id"`
	Spreadsheet       string         `db:"spreadsheet"`
	OutputWorksheet   string         `db:"output_worksheet"`
	StartedAt         time.Time      `db:"started_at"`
	FinishedAt        time.Time      `db:"finished_at"`
	CombinedRows      int            `db:"combined_rows"`
	DuplicatesRemoved int            `db:"duplicates_removed"`
	Written           bool           `db:"written"`
	SkippedTitles     pq.StringArray `db:"skipped_titles"`
	Sheets            []byte         `db:"sheets"`
	ErrorMsg          string         `db:"error_msg"`
}

func (row *runRow) toDomain() (*domain.RunReport, error) {
	report := &domain.RunReport{
		ID:                row.ID,
		Spreadsheet:       row.Spreadsheet,
		OutputWorksheet:   row.OutputWorksheet,
		StartedAt:         row.StartedAt,
		FinishedAt:        row.FinishedAt,
		CombinedRows:      row.CombinedRows,
		DuplicatesRemoved: row.DuplicatesRemoved,
		Written:           row.Written,
		Error:             row.ErrorMsg,
	}
	if len(row.Sheets) > 0 {
		if err := json.Unmarshal(row.Sheets, &report.Sheets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sheets of run %s: %w", row.ID, err)
		}
	}
	return report, nil
}

const runColumns = `id, spreadsheet, output_worksheet, started_at, finished_at,
	combined_rows, duplicates_removed, written, skipped_titles, sheets, error_msg`

// Save inserts or replaces a run report.
func (r *RunRepo) Save(ctx context.Context, report *domain.RunReport) error {
	sheets, err := json.Marshal(report.Sheets)
	if err != nil {
		return fmt.Errorf("failed to marshal sheets: %w", err)
	}

	query := `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			combined_rows = EXCLUDED.combined_rows,
			duplicates_removed = EXCLUDED.duplicates_removed,
			written = EXCLUDED.written,
			skipped_titles = EXCLUDED.skipped_titles,
			sheets = EXCLUDED.sheets,
			error_msg = EXCLUDED.error_msg
	`
	skipped := report.SkippedTitles()
	if skipped == nil {
		skipped = []string{}
	}

	_, err = r.db.ExecContext(
		ctx,
		query,
		report.ID,
		report.Spreadsheet,
		report.OutputWorksheet,
		report.StartedAt,
		report.FinishedAt,
		report.CombinedRows,
		report.DuplicatesRemoved,
		report.Written,
		pq.Array(skipped),
		string(sheets),
		report.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// Get retrieves a run report by id.
func (r *RunRepo) Get(ctx context.Context, id string) (*domain.RunReport, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`

	var row runRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return row.toDomain()
}

// List returns the most recent run reports.
func (r *RunRepo) List(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC LIMIT $1`

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	reports := make([]*domain.RunReport, 0, len(rows))
	for i := range rows {
		report, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
