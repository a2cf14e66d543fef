package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

// ledgerTTL bounds how long a worksheet stays in the ledger without failing again.
const ledgerTTL = 30 * 24 * time.Hour

// FailedSheetRepo implements FailedSheetRepository using Redis.
type FailedSheetRepo struct {
	rdb       *redis.Client
	namespace string
	now       func() time.Time
}

// NewFailedSheetRepo creates a Redis-backed ledger scoped to one spreadsheet.
func NewFailedSheetRepo(client *Client, spreadsheetID string) *FailedSheetRepo {
	return &FailedSheetRepo{
		rdb:       client.rdb,
		namespace: spreadsheetID,
		now:       time.Now,
	}
}

// Key helpers
func (r *FailedSheetRepo) queueKey() string {
	return fmt.Sprintf("failed_sheets:%s", r.namespace)
}

func (r *FailedSheetRepo) sheetKey(title string) string {
	return fmt.Sprintf("failed_sheet:%s:%s", r.namespace, title)
}

func (r *FailedSheetRepo) get(ctx context.Context, title string) (*domain.FailedSheet, error) {
	data, err := r.rdb.Get(ctx, r.sheetKey(title)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed sheet: %w", err)
	}

	var fs domain.FailedSheet
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed sheet: %w", err)
	}
	return &fs, nil
}

// Add records a skipped worksheet. Known worksheets have their failure count bumped.
func (r *FailedSheetRepo) Add(ctx context.Context, fs *domain.FailedSheet) error {
	prev, err := r.get(ctx, fs.Title)
	if err != nil {
		return err
	}

	entry := *fs
	entry.FailureCount = 1
	if prev != nil {
		entry.FailureCount = prev.FailureCount + 1
	}
	if entry.LastFailedAt == 0 {
		entry.LastFailedAt = r.now().Unix()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal failed sheet: %w", err)
	}

	// Payload and queue entry move together.
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, r.sheetKey(entry.Title), data, ledgerTTL)
	pipe.ZAdd(ctx, r.queueKey(), redis.Z{
		Score:  float64(entry.FailureCount),
		Member: entry.Title,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add failed sheet: %w", err)
	}

	fs.FailureCount = entry.FailureCount
	fs.LastFailedAt = entry.LastFailedAt
	return nil
}

// MarkResolved removes a worksheet that was read successfully again.
func (r *FailedSheetRepo) MarkResolved(ctx context.Context, title string) error {
	// Remove from queue
	if err := r.rdb.ZRem(ctx, r.queueKey(), title).Err(); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}

	// Delete data
	if err := r.rdb.Del(ctx, r.sheetKey(title)).Err(); err != nil {
		return fmt.Errorf("failed to delete failed sheet: %w", err)
	}

	return nil
}

// GetAll retrieves all failed worksheets, fewest failures first.
func (r *FailedSheetRepo) GetAll(ctx context.Context) ([]*domain.FailedSheet, error) {
	titles, err := r.rdb.ZRange(ctx, r.queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	sheets := make([]*domain.FailedSheet, 0, len(titles))
	for _, title := range titles {
		fs, err := r.get(ctx, title)
		if err != nil {
			return nil, err
		}
		if fs == nil {
			// Payload expired but title still queued
			r.rdb.ZRem(ctx, r.queueKey(), title)
			continue
		}
		sheets = append(sheets, fs)
	}

	return sheets, nil
}

// Count returns the number of failed worksheets whose payload is still live.
func (r *FailedSheetRepo) Count(ctx context.Context) (int, error) {
	sheets, err := r.GetAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(sheets), nil
}
