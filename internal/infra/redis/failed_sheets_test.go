package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

func setupRepo(t *testing.T) *FailedSheetRepo {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	client, err := NewClient(Config{URL: url})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	// Fresh namespace per test run
	return NewFailedSheetRepo(client, "test-"+uuid.NewString())
}

func TestFailedSheetRepo(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	add := func(title string) {
		t.Helper()
		if err := repo.Add(ctx, &domain.FailedSheet{
			Title:   title,
			Outcome: domain.OutcomeInvalid,
			Error:   "missing required columns: Email",
		}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	add("B")
	add("B")
	add("A")

	count, err := repo.Count(ctx)
	if err != nil || count != 2 {
		t.Fatalf("Count = %d, %v", count, err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 || all[0].Title != "A" || all[1].FailureCount != 2 {
		t.Errorf("unexpected ledger %+v", all)
	}
	if all[0].LastFailedAt == 0 {
		t.Error("expected LastFailedAt to be set")
	}

	if err := repo.MarkResolved(ctx, "B"); err != nil {
		t.Fatalf("MarkResolved failed: %v", err)
	}
	if count, _ := repo.Count(ctx); count != 1 {
		t.Errorf("Count after resolve = %d", count)
	}
}

func TestFailedSheetRepo_CountSkipsExpired(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for _, title := range []string{"A", "B"} {
		if err := repo.Add(ctx, &domain.FailedSheet{Title: title, Outcome: domain.OutcomeExhausted}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	// Payload gone as if its TTL ran out; the queue entry is still there.
	if err := repo.rdb.Del(ctx, repo.sheetKey("A")).Err(); err != nil {
		t.Fatalf("Del failed: %v", err)
	}

	count, err := repo.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("Count = %d, %v", count, err)
	}
	if n, _ := repo.rdb.ZCard(ctx, repo.queueKey()).Result(); n != 1 {
		t.Errorf("expired entry still queued, zcard = %d", n)
	}
}
