package sheets

import (
	"context"
	"fmt"
	"sync"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

// FailFunc decides whether a call should fail. op is one of "open", "titles",
// "worksheet", "values", "clear", "create" or "write".
type FailFunc func(op, title string, call int) error

// MemorySource keeps worksheets in process.
type MemorySource struct {
	title string
	order []string
	data  map[string][][]string
	fail  FailFunc
	calls map[string]int
	mu    sync.Mutex
}

// NewMemorySource creates an empty spreadsheet named title.
func NewMemorySource(title string) *MemorySource {
	return &MemorySource{
		title: title,
		data:  make(map[string][][]string),
		calls: make(map[string]int),
	}
}

// AddWorksheet appends a worksheet holding rows.
func (m *MemorySource) AddWorksheet(title string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[title]; !ok {
		m.order = append(m.order, title)
	}
	m.data[title] = copyRows(rows)
}

// SetFailFunc installs a failure injector.
func (m *MemorySource) SetFailFunc(f FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = f
}

// Calls returns how many times op was invoked for title.
func (m *MemorySource) Calls(op, title string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op+"/"+title]
}

// Rows returns a copy of a worksheet's contents.
func (m *MemorySource) Rows(title string) ([][]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.data[title]
	return copyRows(rows), ok
}

func (m *MemorySource) check(op, title string) error {
	key := op + "/" + title
	m.calls[key]++
	if m.fail == nil {
		return nil
	}
	return m.fail(op, title, m.calls[key])
}

func (m *MemorySource) Open(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("open", ""); err != nil {
		return "", err
	}
	return m.title, nil
}

func (m *MemorySource) Titles(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("titles", ""); err != nil {
		return nil, err
	}
	return append([]string(nil), m.order...), nil
}

func (m *MemorySource) Worksheet(ctx context.Context, title string) (domain.Worksheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("worksheet", title); err != nil {
		return domain.Worksheet{}, err
	}
	if _, ok := m.data[title]; !ok {
		return domain.Worksheet{}, fmt.Errorf("%w: %s", ErrWorksheetNotFound, title)
	}
	return domain.Worksheet{Title: title}, nil
}

func (m *MemorySource) Values(ctx context.Context, ws domain.Worksheet) (domain.RawTable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("values", ws.Title); err != nil {
		return domain.RawTable{}, err
	}
	rows, ok := m.data[ws.Title]
	if !ok {
		return domain.RawTable{}, fmt.Errorf("%w: %s", ErrWorksheetNotFound, ws.Title)
	}
	return domain.RawTable{Rows: copyRows(rows)}, nil
}

func (m *MemorySource) Clear(ctx context.Context, ws domain.Worksheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("clear", ws.Title); err != nil {
		return err
	}
	if _, ok := m.data[ws.Title]; !ok {
		return fmt.Errorf("%w: %s", ErrWorksheetNotFound, ws.Title)
	}
	m.data[ws.Title] = nil
	return nil
}

func (m *MemorySource) Create(
	ctx context.Context,
	title string,
	rows, cols int,
) (domain.Worksheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create", title); err != nil {
		return domain.Worksheet{}, err
	}
	if _, ok := m.data[title]; ok {
		return domain.Worksheet{}, fmt.Errorf("worksheet %q already exists", title)
	}
	m.order = append(m.order, title)
	m.data[title] = nil
	return domain.Worksheet{Title: title}, nil
}

func (m *MemorySource) Write(ctx context.Context, ws domain.Worksheet, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("write", ws.Title); err != nil {
		return err
	}
	if _, ok := m.data[ws.Title]; !ok {
		return fmt.Errorf("%w: %s", ErrWorksheetNotFound, ws.Title)
	}
	m.data[ws.Title] = copyRows(rows)
	return nil
}

func copyRows(rows [][]string) [][]string {
	if rows == nil {
		return nil
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}
