package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/sheetmerge/internal/core/domain"
	"github.com/vietddude/sheetmerge/internal/infra/retry"
	"github.com/vietddude/sheetmerge/internal/infra/sheets"
)

// writeOutput replaces the contents of the output worksheet with the header
// and records, creating the worksheet if needed.
func (a *App) writeOutput(ctx context.Context, records []domain.Record) error {
	title := a.cfg.Output.Worksheet

	ws, err := retry.Value(ctx, a.policy, "worksheet", func(ctx context.Context) (domain.Worksheet, error) {
		return a.source.Worksheet(ctx, title)
	})
	switch {
	case err == nil:
		if err := a.policy.Do(ctx, "clear", func(ctx context.Context) error {
			return a.source.Clear(ctx, ws)
		}); err != nil {
			return fmt.Errorf("failed to clear output worksheet: %w", err)
		}
		a.log.Info("Cleared existing output worksheet", "worksheet", title)
	case errors.Is(err, sheets.ErrWorksheetNotFound):
		ws, err = retry.Value(ctx, a.policy, "create", func(ctx context.Context) (domain.Worksheet, error) {
			return a.source.Create(ctx, title, len(records)+1, len(domain.OutputHeader))
		})
		if err != nil {
			return fmt.Errorf("failed to create output worksheet: %w", err)
		}
		a.log.Info("Created output worksheet", "worksheet", title)
	default:
		return fmt.Errorf("failed to open output worksheet: %w", err)
	}

	// Give the remote side a moment after clear/create.
	if delay := a.cfg.Output.WriteDelay; delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, domain.OutputHeader)
	for _, r := range records {
		rows = append(rows, r.Row())
	}

	if err := a.policy.Do(ctx, "write", func(ctx context.Context) error {
		return a.source.Write(ctx, ws, rows)
	}); err != nil {
		return fmt.Errorf("failed to write output worksheet: %w", err)
	}
	return nil
}
