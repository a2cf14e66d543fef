package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

// FailedSheetRepo implements storage.FailedSheetRepository using PostgreSQL.
// Rows are scoped to one spreadsheet.
type FailedSheetRepo struct {
	db            *DB
	spreadsheetID string
}

// NewFailedSheetRepo creates a PostgreSQL ledger for one spreadsheet.
func NewFailedSheetRepo(db *DB, spreadsheetID string) *FailedSheetRepo {
	return &FailedSheetRepo{db: db, spreadsheetID: spreadsheetID}
}

// Add records a skipped worksheet, bumping the failure count of known ones.
func (r *FailedSheetRepo) Add(ctx context.Context, fs *domain.FailedSheet) error {
	query := `
		INSERT INTO failed_sheets (spreadsheet_id, title, outcome, error_msg, failure_count, last_run_id, last_failed_at)
		VALUES ($1, $2, $3, $4, 1, $5, NOW())
		ON CONFLICT (spreadsheet_id, title) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			error_msg = EXCLUDED.error_msg,
			failure_count = failed_sheets.failure_count + 1,
			last_run_id = EXCLUDED.last_run_id,
			last_failed_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, r.spreadsheetID, fs.Title, string(fs.Outcome), fs.Error, fs.LastRunID)
	if err != nil {
		return fmt.Errorf("failed to add failed sheet: %w", err)
	}
	return nil
}

// MarkResolved removes a worksheet from the ledger.
func (r *FailedSheetRepo) MarkResolved(ctx context.Context, title string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM failed_sheets WHERE spreadsheet_id = $1 AND title = $2`, r.spreadsheetID, title)
	return err
}

// GetAll returns every failed worksheet.
func (r *FailedSheetRepo) GetAll(ctx context.Context) ([]*domain.FailedSheet, error) {
	query := `
		SELECT title, outcome, error_msg, failure_count, last_run_id, last_failed_at
		FROM failed_sheets
		WHERE spreadsheet_id = $1
		ORDER BY failure_count ASC, title ASC
	`

	var rows []struct {
		Title        string    `db:"title"`
		Outcome      string    `db:"outcome"`
		ErrorMsg     string    `db:"error_msg"`
		FailureCount int       `db:"failure_count"`
		LastRunID    string    `db:"last_run_id"`
		LastFailedAt time.Time `db:"last_failed_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, r.spreadsheetID); err != nil {
		return nil, fmt.Errorf("failed to get failed sheets: %w", err)
	}

	sheets := make([]*domain.FailedSheet, 0, len(rows))
	for _, row := range rows {
		sheets = append(sheets, &domain.FailedSheet{
			Title:        row.Title,
			Outcome:      domain.Outcome(row.Outcome),
			Error:        row.ErrorMsg,
			FailureCount: row.FailureCount,
			LastRunID:    row.LastRunID,
			LastFailedAt: row.LastFailedAt.Unix(),
		})
	}
	return sheets, nil
}

// Count returns the number of failed worksheets.
func (r *FailedSheetRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM failed_sheets WHERE spreadsheet_id = $1`, r.spreadsheetID); err != nil {
		return 0, fmt.Errorf("failed to count failed sheets: %w", err)
	}
	return count, nil
}
