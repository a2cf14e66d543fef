// Package retry wraps single remote calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/vietddude/sheetmerge/internal/infra/sheets"
)

// Config defines retry behavior.
type Config struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	MaxDelay        time.Duration `yaml:"max_delay"`
	BackoffMultiple float64       `yaml:"backoff_multiple"`
}

// DefaultConfig mirrors the limits of the sheets API client.
var DefaultConfig = Config{
	MaxAttempts:     5,
	InitialDelay:    1 * time.Second,
	MaxDelay:        60 * time.Second,
	BackoffMultiple: 2.0,
}

// Action determines how to handle an error.
type Action int

const (
	ActionRetry Action = iota
	ActionFatal
)

func (a Action) String() string {
	if a == ActionRetry {
		return "retry"
	}
	return "fatal"
}

// Classifier maps an error to an Action.
type Classifier func(err error) Action

// ClassifyError is the default Classifier for sheets API calls.
func ClassifyError(err error) Action {
	if err == nil {
		return ActionFatal
	}

	if errors.Is(err, context.Canceled) {
		return ActionFatal
	}
	if errors.Is(err, sheets.ErrSpreadsheetNotFound) ||
		errors.Is(err, sheets.ErrWorksheetNotFound) ||
		errors.Is(err, sheets.ErrAccessDenied) {
		return ActionFatal
	}

	var apiErr *sheets.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Temporary() {
			return ActionRetry
		}
		return ActionFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ActionRetry
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return ActionRetry
	}

	s := strings.ToLower(err.Error())
	if strings.Contains(s, "connection reset") || strings.Contains(s, "timeout") ||
		strings.Contains(s, "too many requests") || strings.Contains(s, "rate limit") {
		return ActionRetry
	}

	return ActionFatal
}

// Error is returned once every attempt failed with a transient error.
type Error struct {
	Op       string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsExhausted reports whether err came from a policy that ran out of attempts.
func IsExhausted(err error) bool {
	var re *Error
	return errors.As(err, &re)
}

// Policy retries a single call on transient failures.
type Policy struct {
	cfg      Config
	classify Classifier
	log      *slog.Logger

	// OnRetry, when set, is called before each wait.
	OnRetry func(op string, attempt int, err error)
}

// New creates a Policy. A nil classifier selects ClassifyError.
func New(cfg Config, classify Classifier, log *slog.Logger) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffMultiple <= 0 {
		cfg.BackoffMultiple = 2.0
	}
	if classify == nil {
		classify = ClassifyError
	}
	if log == nil {
		log = slog.Default()
	}
	return &Policy{cfg: cfg, classify: classify, log: log}
}

// Do executes fn with exponential backoff.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return err
		}
		if p.classify(err) == ActionFatal {
			return err // Stop immediately, do not retry
		}

		if attempt == p.cfg.MaxAttempts-1 {
			break
		}

		delay := p.Backoff(attempt)
		p.log.Warn("Retrying call",
			"op", op,
			"attempt", attempt+1,
			"max_attempts", p.cfg.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if p.OnRetry != nil {
			p.OnRetry(op, attempt+1, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return &Error{Op: op, Attempts: p.cfg.MaxAttempts, Err: lastErr}
}

// Backoff returns InitialDelay * BackoffMultiple^attempt, capped at MaxDelay.
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.BackoffMultiple, float64(attempt))
	if p.cfg.MaxDelay > 0 && delay > float64(p.cfg.MaxDelay) {
		delay = float64(p.cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// Value runs fn through p and returns its result.
func Value[T any](
	ctx context.Context,
	p *Policy,
	op string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
