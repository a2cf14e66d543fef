// Package sheets provides access to the remote spreadsheet that holds the
// worksheets to merge.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

var (
	// ErrSpreadsheetNotFound is returned when the spreadsheet itself does not exist.
	ErrSpreadsheetNotFound = errors.New("spreadsheet not found")

	// ErrAccessDenied is returned when the credentials cannot read the spreadsheet.
	ErrAccessDenied = errors.New("spreadsheet access denied")

	// ErrWorksheetNotFound is returned when a worksheet title does not exist.
	ErrWorksheetNotFound = errors.New("worksheet not found")
)

// Source is a remote spreadsheet made of named worksheets.
type Source interface {
	// Open resolves the spreadsheet and returns its title.
	Open(ctx context.Context) (string, error)

	// Titles lists every worksheet title in spreadsheet order.
	Titles(ctx context.Context) ([]string, error)

	// Worksheet returns a handle for title, or ErrWorksheetNotFound.
	Worksheet(ctx context.Context, title string) (domain.Worksheet, error)

	// Values returns the full grid of a worksheet.
	Values(ctx context.Context, ws domain.Worksheet) (domain.RawTable, error)

	// Clear removes every value of a worksheet.
	Clear(ctx context.Context, ws domain.Worksheet) error

	// Create adds a worksheet with the given grid size.
	Create(ctx context.Context, title string, rows, cols int) (domain.Worksheet, error)

	// Write stores rows starting at the top-left cell.
	Write(ctx context.Context, ws domain.Worksheet, rows [][]string) error
}

// APIError is a non-2xx answer from the spreadsheet API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("sheets api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("sheets api: http %d %s: %s", e.StatusCode, e.Status, e.Message)
}

// RateLimited reports whether the error is a quota or rate-limit rejection.
func (e *APIError) RateLimited() bool {
	if e.StatusCode == 429 || e.Status == "RESOURCE_EXHAUSTED" {
		return true
	}
	msg := strings.ToLower(e.Message)
	return e.StatusCode == 403 &&
		(strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"))
}

// Temporary reports whether repeating the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.RateLimited() || e.StatusCode >= 500
}
