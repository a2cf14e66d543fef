package sheets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/vietddude/sheetmerge/internal/core/domain"
)

func TestMemorySource_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource("Book")
	src.AddWorksheet("A", [][]string{{"Name", "Email"}, {"x", "x@y.com"}})

	titles, _ := src.Titles(ctx)
	if !reflect.DeepEqual(titles, []string{"A"}) {
		t.Errorf("titles = %v", titles)
	}

	if _, err := src.Worksheet(ctx, "B"); !errors.Is(err, ErrWorksheetNotFound) {
		t.Errorf("expected ErrWorksheetNotFound, got %v", err)
	}

	ws, err := src.Create(ctx, "B", 2, 2)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := src.Create(ctx, "B", 2, 2); err == nil {
		t.Error("expected error creating an existing worksheet")
	}

	rows := [][]string{{"Name", "Email"}}
	if err := src.Write(ctx, ws, rows); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	rows[0][0] = "mutated"
	got, _ := src.Rows("B")
	if got[0][0] != "Name" {
		t.Error("Write must copy rows")
	}

	if err := src.Clear(ctx, ws); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	table, _ := src.Values(ctx, ws)
	if len(table.Rows) != 0 {
		t.Errorf("expected cleared worksheet, got %v", table.Rows)
	}

	if err := src.Write(ctx, domain.Worksheet{Title: "C"}, rows); !errors.Is(err, ErrWorksheetNotFound) {
		t.Errorf("expected ErrWorksheetNotFound writing unknown worksheet, got %v", err)
	}
}

func TestMemorySource_FailFunc(t *testing.T) {
	ctx := context.Background()
	src := NewMemorySource("Book")
	src.AddWorksheet("A", [][]string{{"Name", "Email"}})
	boom := errors.New("boom")
	src.SetFailFunc(func(op, title string, call int) error {
		if op == "values" && call <= 2 {
			return boom
		}
		return nil
	})

	ws := domain.Worksheet{Title: "A"}
	for i := 0; i < 2; i++ {
		if _, err := src.Values(ctx, ws); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected injected error, got %v", i+1, err)
		}
	}
	if _, err := src.Values(ctx, ws); err != nil {
		t.Fatalf("third call failed: %v", err)
	}
	if src.Calls("values", "A") != 3 {
		t.Errorf("calls = %d, want 3", src.Calls("values", "A"))
	}
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.yaml")
	content := `
title: Newsletters
worksheets:
  - title: Sheet1
    rows:
      - [Name, Email, Status]
      - ["", a@x.com, Active]
  - title: Sheet2
    rows:
      - [Name, Email]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture failed: %v", err)
	}
	title, _ := src.Open(context.Background())
	if title != "Newsletters" {
		t.Errorf("title = %q", title)
	}
	rows, ok := src.Rows("Sheet1")
	if !ok || len(rows) != 2 || rows[1][1] != "a@x.com" {
		t.Errorf("unexpected Sheet1 rows %v", rows)
	}
	titles, _ := src.Titles(context.Background())
	if !reflect.DeepEqual(titles, []string{"Sheet1", "Sheet2"}) {
		t.Errorf("titles = %v", titles)
	}

	if _, err := LoadFixture(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for missing fixture")
	}
}
