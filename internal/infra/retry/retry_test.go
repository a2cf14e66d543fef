package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/vietddude/sheetmerge/internal/infra/sheets"
)

func testConfig() Config {
	return Config{
		MaxAttempts:     5,
		InitialDelay:    time.Millisecond,
		MaxDelay:        4 * time.Millisecond,
		BackoffMultiple: 2,
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect Action
	}{
		{&sheets.APIError{StatusCode: 429}, ActionRetry},
		{&sheets.APIError{StatusCode: 503}, ActionRetry},
		{&sheets.APIError{StatusCode: 403, Message: "Quota exceeded for quota metric"}, ActionRetry},
		{&sheets.APIError{StatusCode: 403, Message: "The caller does not have permission"}, ActionFatal},
		{&sheets.APIError{StatusCode: 400, Message: "bad request"}, ActionFatal},
		{fmt.Errorf("wrap: %w", &sheets.APIError{StatusCode: 500}), ActionRetry},
		{fmt.Errorf("%w: Sheet9", sheets.ErrWorksheetNotFound), ActionFatal},
		{sheets.ErrSpreadsheetNotFound, ActionFatal},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, ActionRetry},
		{errors.New("read tcp: connection reset by peer"), ActionRetry},
		{errors.New("i/o timeout"), ActionRetry},
		{context.Canceled, ActionFatal},
		{errors.New("invalid header"), ActionFatal},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

func TestPolicy_Backoff(t *testing.T) {
	p := New(Config{MaxAttempts: 5, InitialDelay: time.Second, MaxDelay: 60 * time.Second}, nil, nil)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for attempt, w := range want {
		if got := p.Backoff(attempt); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestPolicy_RetriesTransientThenSucceeds(t *testing.T) {
	p := New(testConfig(), nil, nil)

	var retries []int
	p.OnRetry = func(op string, attempt int, err error) {
		retries = append(retries, attempt)
	}

	calls := 0
	err := p.Do(context.Background(), "values", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &sheets.APIError{StatusCode: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(retries) != 2 {
		t.Errorf("expected 2 retry notifications, got %v", retries)
	}
}

func TestPolicy_FatalStopsImmediately(t *testing.T) {
	p := New(testConfig(), nil, nil)

	calls := 0
	err := p.Do(context.Background(), "open", func(ctx context.Context) error {
		calls++
		return sheets.ErrSpreadsheetNotFound
	})
	if !errors.Is(err, sheets.ErrSpreadsheetNotFound) {
		t.Fatalf("expected ErrSpreadsheetNotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if IsExhausted(err) {
		t.Error("fatal error should not be reported as exhausted")
	}
}

func TestPolicy_Exhausted(t *testing.T) {
	p := New(testConfig(), nil, nil)

	transient := &sheets.APIError{StatusCode: 502, Message: "bad gateway"}
	calls := 0
	err := p.Do(context.Background(), "values", func(ctx context.Context) error {
		calls++
		return transient
	})
	if calls != 5 {
		t.Errorf("expected 5 calls, got %d", calls)
	}
	if !IsExhausted(err) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	var apiErr *sheets.APIError
	if !errors.As(err, &apiErr) || apiErr != transient {
		t.Errorf("expected last transient error to be wrapped, got %v", err)
	}
}

func TestPolicy_ContextCancelledDuringWait(t *testing.T) {
	p := New(Config{MaxAttempts: 3, InitialDelay: time.Hour, MaxDelay: time.Hour}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := p.Do(ctx, "values", func(ctx context.Context) error {
		calls++
		cancel()
		return &sheets.APIError{StatusCode: 503}
	})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestValue(t *testing.T) {
	p := New(testConfig(), nil, nil)

	calls := 0
	titles, err := Value(context.Background(), p, "titles", func(ctx context.Context) ([]string, error) {
		calls++
		if calls == 1 {
			return nil, &sheets.APIError{StatusCode: 500}
		}
		return []string{"Sheet1", "Sheet2"}, nil
	})
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if len(titles) != 2 || titles[0] != "Sheet1" {
		t.Errorf("unexpected titles %v", titles)
	}
}
