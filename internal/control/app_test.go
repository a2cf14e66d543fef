package control

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/vietddude/sheetmerge/internal/core/config"
	"github.com/vietddude/sheetmerge/internal/core/domain"
	"github.com/vietddude/sheetmerge/internal/infra/archive"
	"github.com/vietddude/sheetmerge/internal/infra/sheets"
)

// =============================================================================
// Helpers
// =============================================================================

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	t.Setenv("SPREADSHEET_ID", "")
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Retry.Call.InitialDelay = time.Millisecond
	cfg.Retry.Call.MaxDelay = 2 * time.Millisecond
	cfg.Retry.Rounds.RoundDelay = time.Millisecond
	cfg.Output.WriteDelay = time.Millisecond
	return cfg
}

func newsletterSource() *sheets.MemorySource {
	src := sheets.NewMemorySource("Newsletters")
	src.AddWorksheet("Sheet1", [][]string{
		{"Name", "Email", "Status"},
		{"", "a@x.com", "Active"},
		{"Bob", "b@x.com", "Inactive"},
		{"", "support@x.com", "Active"},
	})
	src.AddWorksheet("Sheet2", [][]string{
		{"Name", "Email"},
		{"Carol", "a@x.com"},
	})
	return src
}

func outputRows(t *testing.T, src *sheets.MemorySource, cfg *config.AppConfig) [][]string {
	t.Helper()
	rows, ok := src.Rows(cfg.Output.Worksheet)
	if !ok {
		t.Fatalf("output worksheet %q not found", cfg.Output.Worksheet)
	}
	return rows
}

func sheetResult(t *testing.T, report *domain.RunReport, title string) domain.SheetResult {
	t.Helper()
	for _, s := range report.Sheets {
		if s.Title == title {
			return s
		}
	}
	t.Fatalf("no result for %q", title)
	return domain.SheetResult{}
}

type recordingStore struct {
	key  string
	data []byte
}

func (r *recordingStore) PutObject(ctx context.Context, bucket, key, contentType string, data []byte) error {
	r.key, r.data = key, data
	return nil
}

// =============================================================================
// App Tests
// =============================================================================

func TestApp_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	src := newsletterSource()
	stores := MemoryStores()

	app := NewApp(cfg, src, stores, Options{}, nil)
	report, err := app.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := [][]string{{"Name", "Email"}, {"A", "a@x.com"}}
	if got := outputRows(t, src, cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}

	if !report.Written || report.CombinedRows != 1 || report.DuplicatesRemoved != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.Spreadsheet != "Newsletters" {
		t.Errorf("spreadsheet = %q", report.Spreadsheet)
	}
	s1 := sheetResult(t, report, "Sheet1")
	if s1.Outcome != domain.OutcomeSucceeded || s1.RowsRead != 3 || s1.RecordsKept != 1 {
		t.Errorf("unexpected Sheet1 result %+v", s1)
	}

	saved, err := stores.Runs.Get(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("report not saved: %v", err)
	}
	if saved.ID != app.RunID() {
		t.Errorf("saved id %s, want %s", saved.ID, app.RunID())
	}
}

func TestApp_RetryTermination(t *testing.T) {
	cfg := testConfig(t)
	src := newsletterSource()
	src.AddWorksheet("Broken", [][]string{{"Name", "Email"}, {"Zed", "z@x.com"}})
	src.SetFailFunc(func(op, title string, call int) error {
		if title == "Broken" && op == "values" {
			return &sheets.APIError{StatusCode: 503, Status: "UNAVAILABLE"}
		}
		return nil
	})
	stores := MemoryStores()

	report, err := NewApp(cfg, src, stores, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	broken := sheetResult(t, report, "Broken")
	if broken.Outcome != domain.OutcomeExhausted || broken.Attempts != 3 {
		t.Errorf("unexpected Broken result %+v", broken)
	}
	// Every round retries the call up to the per-call ceiling.
	if got, want := src.Calls("values", "Broken"), 3*cfg.Retry.Call.MaxAttempts; got != want {
		t.Errorf("values calls = %d, want %d", got, want)
	}

	want := [][]string{{"Name", "Email"}, {"A", "a@x.com"}}
	if got := outputRows(t, src, cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}

	failed, err := stores.Failed.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Title != "Broken" || failed[0].FailureCount != 1 {
		t.Fatalf("unexpected ledger %+v", failed)
	}
	if failed[0].LastRunID != report.ID {
		t.Errorf("ledger run id %s, want %s", failed[0].LastRunID, report.ID)
	}

	// A later run that reads the sheet resolves it.
	src.SetFailFunc(nil)
	if _, err := NewApp(cfg, src, stores, Options{}, nil).Run(context.Background()); err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if n, _ := stores.Failed.Count(context.Background()); n != 0 {
		t.Errorf("expected ledger to be empty, got %d", n)
	}
	want = append(want, []string{"Zed", "z@x.com"})
	if got := outputRows(t, src, cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}
}

func TestApp_ExistingOutputIsReplaced(t *testing.T) {
	cfg := testConfig(t)
	src := newsletterSource()
	src.AddWorksheet(cfg.Output.Worksheet, [][]string{
		{"Name", "Email"},
		{"Stale", "stale@x.com"},
	})

	report, err := NewApp(cfg, src, nil, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := [][]string{{"Name", "Email"}, {"A", "a@x.com"}}
	if got := outputRows(t, src, cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}
	if src.Calls("clear", cfg.Output.Worksheet) != 1 {
		t.Error("expected output worksheet to be cleared")
	}
	if src.Calls("create", cfg.Output.Worksheet) != 0 {
		t.Error("output worksheet should not be recreated")
	}
	for _, s := range report.Sheets {
		if s.Title == cfg.Output.Worksheet {
			t.Error("output worksheet must not be read as input")
		}
	}
}

func TestApp_DryRun(t *testing.T) {
	cfg := testConfig(t)
	src := newsletterSource()

	report, err := NewApp(cfg, src, nil, Options{DryRun: true}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Written {
		t.Error("dry run must not write")
	}
	if report.CombinedRows != 1 {
		t.Errorf("combined rows = %d, want 1", report.CombinedRows)
	}
	if _, ok := src.Rows(cfg.Output.Worksheet); ok {
		t.Error("dry run created the output worksheet")
	}
}

func TestApp_NothingToWrite(t *testing.T) {
	cfg := testConfig(t)
	src := sheets.NewMemorySource("Newsletters")
	src.AddWorksheet("NoEmail", [][]string{{"Name", "Phone"}, {"A", "1"}})
	src.AddWorksheet("HeaderOnly", [][]string{{"Name", "Email"}})
	src.AddWorksheet("AllInactive", [][]string{
		{"Name", "Email", "Status"},
		{"B", "b@x.com", "Inactive"},
	})

	report, err := NewApp(cfg, src, nil, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Written {
		t.Error("nothing should be written")
	}
	if _, ok := src.Rows(cfg.Output.Worksheet); ok {
		t.Error("output worksheet should not exist")
	}

	if got := sheetResult(t, report, "NoEmail").Outcome; got != domain.OutcomeInvalid {
		t.Errorf("NoEmail outcome = %s", got)
	}
	if got := sheetResult(t, report, "HeaderOnly").Outcome; got != domain.OutcomeEmpty {
		t.Errorf("HeaderOnly outcome = %s", got)
	}
	all := sheetResult(t, report, "AllInactive")
	if all.Outcome != domain.OutcomeSucceeded || all.RecordsKept != 0 {
		t.Errorf("AllInactive result = %+v", all)
	}
	if report.Count(domain.OutcomeInvalid) != 1 {
		t.Errorf("invalid count = %d", report.Count(domain.OutcomeInvalid))
	}
}

func TestApp_OpenFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	src := newsletterSource()
	src.SetFailFunc(func(op, title string, call int) error {
		if op == "open" {
			return sheets.ErrAccessDenied
		}
		return nil
	})
	stores := MemoryStores()

	report, err := NewApp(cfg, src, stores, Options{}, nil).Run(context.Background())
	if !errors.Is(err, sheets.ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if src.Calls("open", "") != 1 {
		t.Errorf("fatal errors must not be retried, got %d calls", src.Calls("open", ""))
	}
	if src.Calls("titles", "") != 0 {
		t.Error("worksheets listed after a fatal open")
	}

	saved, err := stores.Runs.Get(context.Background(), report.ID)
	if err != nil {
		t.Fatalf("failed run not saved: %v", err)
	}
	if saved.Error == "" {
		t.Error("expected saved run to carry the error")
	}
}

func TestApp_TransientWriteIsRetried(t *testing.T) {
	cfg := testConfig(t)
	src := newsletterSource()
	src.SetFailFunc(func(op, title string, call int) error {
		if op == "write" && call == 1 {
			return &sheets.APIError{StatusCode: 429, Status: "RESOURCE_EXHAUSTED"}
		}
		return nil
	})

	report, err := NewApp(cfg, src, nil, Options{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !report.Written {
		t.Error("expected output to be written")
	}
	if src.Calls("write", cfg.Output.Worksheet) != 2 {
		t.Errorf("write calls = %d, want 2", src.Calls("write", cfg.Output.Worksheet))
	}
}

func TestApp_WriteFailure(t *testing.T) {
	cfg := testConfig(t)
	src := newsletterSource()
	src.SetFailFunc(func(op, title string, call int) error {
		if op == "create" {
			return &sheets.APIError{StatusCode: 400, Status: "INVALID_ARGUMENT", Message: "bad request"}
		}
		return nil
	})
	stores := MemoryStores()

	report, err := NewApp(cfg, src, stores, Options{}, nil).Run(context.Background())
	if err == nil {
		t.Fatal("expected write failure")
	}
	if report.Written {
		t.Error("report must not claim the output was written")
	}
	if _, err := stores.Runs.Get(context.Background(), report.ID); err != nil {
		t.Errorf("failed run not saved: %v", err)
	}
}

func TestApp_Archive(t *testing.T) {
	cfg := testConfig(t)
	store := &recordingStore{}

	archiver, err := archive.New(store, "exports", archive.FormatCSV)
	if err != nil {
		t.Fatalf("archive.New failed: %v", err)
	}

	app := NewApp(cfg, newsletterSource(), nil, Options{Archiver: archiver}, nil)
	report, err := app.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if store.key != archive.Key(report.ID, archive.FormatCSV) {
		t.Errorf("archived under %q", store.key)
	}
	if string(store.data) != "Name,Email\nA,a@x.com\n" {
		t.Errorf("archived %q", store.data)
	}
}

func TestApp_Titles(t *testing.T) {
	cfg := testConfig(t)
	src := newsletterSource()
	src.AddWorksheet(cfg.Output.Worksheet, nil)

	title, titles, err := NewApp(cfg, src, nil, Options{}, nil).Titles(context.Background())
	if err != nil {
		t.Fatalf("Titles failed: %v", err)
	}
	if title != "Newsletters" {
		t.Errorf("title = %q", title)
	}
	want := []string{"Sheet1", "Sheet2", cfg.Output.Worksheet}
	if !reflect.DeepEqual(titles, want) {
		t.Errorf("titles = %v, want %v", titles, want)
	}
}

func TestApp_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Retry.Rounds.RoundDelay = time.Hour
	src := newsletterSource()
	src.SetFailFunc(func(op, title string, call int) error {
		if op == "values" && title == "Sheet2" {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewApp(cfg, src, nil, Options{}, nil).Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestApp_HealthServerPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port
	src := newsletterSource()
	stores := MemoryStores()

	app := NewApp(cfg, src, stores, Options{}, nil)
	report, err := app.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := [][]string{{"Name", "Email"}, {"A", "a@x.com"}}
	if got := outputRows(t, src, cfg); !reflect.DeepEqual(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}
	if _, err := stores.Runs.Get(context.Background(), report.ID); err != nil {
		t.Errorf("report not saved: %v", err)
	}
}
