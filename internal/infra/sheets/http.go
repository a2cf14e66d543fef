package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

// Config holds connection settings for the spreadsheet API.
type Config struct {
	SpreadsheetID     string        `yaml:"spreadsheet_id"`
	BaseURL           string        `yaml:"base_url"`
	AccessToken       string        `yaml:"access_token"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// HTTPSource implements Source against the Google Sheets v4 REST API.
type HTTPSource struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	monitor    *Monitor
}

// NewHTTPSource creates a new REST-backed source.
func NewHTTPSource(cfg Config) *HTTPSource {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &HTTPSource{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, 1),
		monitor: NewMonitor(),
	}
}

// Stats returns call statistics of this source.
func (s *HTTPSource) Stats() MonitorStats {
	return s.monitor.Stats()
}

type spreadsheetMeta struct {
	Properties struct {
		Title string `json:"title"`
	} `json:"properties"`
	Sheets []struct {
		Properties struct {
			Title string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

func (s *HTTPSource) meta(ctx context.Context) (*spreadsheetMeta, error) {
	q := url.Values{"fields": {"properties.title,sheets.properties.title"}}
	var meta spreadsheetMeta
	if err := s.do(ctx, http.MethodGet, s.spreadsheetURL("", q), nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Open resolves the spreadsheet and returns its title.
func (s *HTTPSource) Open(ctx context.Context) (string, error) {
	meta, err := s.meta(ctx)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.StatusCode == http.StatusNotFound:
				return "", fmt.Errorf("%w: %w", ErrSpreadsheetNotFound, err)
			case apiErr.StatusCode == http.StatusUnauthorized,
				apiErr.StatusCode == http.StatusForbidden && !apiErr.RateLimited():
				return "", fmt.Errorf("%w: %w", ErrAccessDenied, err)
			}
		}
		return "", err
	}
	return meta.Properties.Title, nil
}

// Titles lists every worksheet title in spreadsheet order.
func (s *HTTPSource) Titles(ctx context.Context) ([]string, error) {
	meta, err := s.meta(ctx)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(meta.Sheets))
	for _, sh := range meta.Sheets {
		titles = append(titles, sh.Properties.Title)
	}
	return titles, nil
}

// Worksheet returns a handle for title.
func (s *HTTPSource) Worksheet(ctx context.Context, title string) (domain.Worksheet, error) {
	titles, err := s.Titles(ctx)
	if err != nil {
		return domain.Worksheet{}, err
	}
	for _, t := range titles {
		if t == title {
			return domain.Worksheet{Title: t}, nil
		}
	}
	return domain.Worksheet{}, fmt.Errorf("%w: %s", ErrWorksheetNotFound, title)
}

// Values returns the full grid of a worksheet, padded to a rectangle.
func (s *HTTPSource) Values(ctx context.Context, ws domain.Worksheet) (domain.RawTable, error) {
	q := url.Values{
		"valueRenderOption": {"FORMATTED_VALUE"},
		"majorDimension":    {"ROWS"},
	}
	var resp struct {
		Values [][]any `json:"values"`
	}
	if err := s.do(ctx, http.MethodGet, s.spreadsheetURL("/values/"+a1Range(ws.Title), q), nil, &resp); err != nil {
		return domain.RawTable{}, worksheetErr(ws.Title, err)
	}

	width := 0
	for _, r := range resp.Values {
		width = max(width, len(r))
	}
	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		row := make([]string, width)
		for j, c := range r {
			row[j] = cellString(c)
		}
		rows[i] = row
	}
	return domain.RawTable{Rows: rows}, nil
}

// Clear removes every value of a worksheet.
func (s *HTTPSource) Clear(ctx context.Context, ws domain.Worksheet) error {
	u := s.spreadsheetURL("/values/"+a1Range(ws.Title)+":clear", nil)
	return worksheetErr(ws.Title, s.do(ctx, http.MethodPost, u, map[string]any{}, nil))
}

// Create adds a worksheet with the given grid size.
func (s *HTTPSource) Create(
	ctx context.Context,
	title string,
	rows, cols int,
) (domain.Worksheet, error) {
	body := map[string]any{
		"requests": []any{
			map[string]any{
				"addSheet": map[string]any{
					"properties": map[string]any{
						"title": title,
						"gridProperties": map[string]any{
							"rowCount":    max(rows, 1),
							"columnCount": max(cols, 1),
						},
					},
				},
			},
		},
	}
	if err := s.do(ctx, http.MethodPost, s.spreadsheetURL(":batchUpdate", nil), body, nil); err != nil {
		return domain.Worksheet{}, fmt.Errorf("create worksheet %q: %w", title, err)
	}
	return domain.Worksheet{Title: title}, nil
}

// Write stores rows starting at A1.
func (s *HTTPSource) Write(ctx context.Context, ws domain.Worksheet, rows [][]string) error {
	body := map[string]any{
		"range":          quoteTitle(ws.Title),
		"majorDimension": "ROWS",
		"values":         rows,
	}
	q := url.Values{"valueInputOption": {"RAW"}}
	u := s.spreadsheetURL("/values/"+a1Range(ws.Title), q)
	return worksheetErr(ws.Title, s.do(ctx, http.MethodPut, u, body, nil))
}

func (s *HTTPSource) spreadsheetURL(suffix string, q url.Values) string {
	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/spreadsheets/" + url.PathEscape(s.cfg.SpreadsheetID) + suffix
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (s *HTTPSource) do(ctx context.Context, method, u string, in, out any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	s.monitor.RecordRequest(time.Since(start))
	if err != nil {
		s.monitor.RecordError(err)
		return fmt.Errorf("sheets request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		s.monitor.RecordError(err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp, data)
		s.monitor.RecordError(apiErr)
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response, data []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RetryAfter: resp.Header.Get("Retry-After"),
	}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Status = envelope.Error.Status
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// worksheetErr maps an unknown-range rejection to ErrWorksheetNotFound.
func worksheetErr(title string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Message), "unable to parse range") {
		return fmt.Errorf("%w: %s: %w", ErrWorksheetNotFound, title, err)
	}
	return err
}

func quoteTitle(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// a1Range quotes a worksheet title for use as an A1 range in a URL path.
func a1Range(title string) string {
	return url.PathEscape(quoteTitle(title))
}

func cellString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case bool:
		if c {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(c)
	}
}
