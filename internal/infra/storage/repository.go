package storage

import (
	"context"
	"errors"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

var (
	// ErrRunNotFound is returned when a run report doesn't exist
	ErrRunNotFound = errors.New("run not found")
)

// RunRepository handles run report storage
type RunRepository interface {
	// Save saves a run report
	Save(ctx context.Context, report *domain.RunReport) error

	// Get retrieves a run report by id
	Get(ctx context.Context, id string) (*domain.RunReport, error)

	// List returns the most recent run reports, newest first
	List(ctx context.Context, limit int) ([]*domain.RunReport, error)
}

// FailedSheetRepository tracks worksheets that runs had to skip
type FailedSheetRepository interface {
	// Add records a skipped worksheet, bumping its failure count
	Add(ctx context.Context, sheet *domain.FailedSheet) error

	// MarkResolved removes a worksheet that was read successfully again
	MarkResolved(ctx context.Context, title string) error

	// GetAll retrieves all failed worksheets, fewest failures first
	GetAll(ctx context.Context) ([]*domain.FailedSheet, error)

	// Count returns the number of failed worksheets
	Count(ctx context.Context) (int, error)
}
