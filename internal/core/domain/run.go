package domain

import "time"

// SheetResult summarizes what a run did with one worksheet.
type SheetResult struct {
	Title       string  `json:"title"`
	Outcome     Outcome `json:"outcome"`
	Attempts    int     `json:"attempts"`
	RowsRead    int     `json:"rows_read"`
	RecordsKept int     `json:"records_kept"`
	Error       string  `json:"error,omitempty"`
}

// RunReport is the summary persisted after every run.
type RunReport struct {
	ID                string        `json:"id"`
	Spreadsheet       string        `json:"spreadsheet"`
	OutputWorksheet   string        `json:"output_worksheet"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	Sheets            []SheetResult `json:"sheets"`
	CombinedRows      int           `json:"combined_rows"`
	DuplicatesRemoved int           `json:"duplicates_removed"`
	Written           bool          `json:"written"`
	Error             string        `json:"error,omitempty"`
}

// Count returns how many worksheets ended with the given outcome.
func (r *RunReport) Count(o Outcome) int {
	n := 0
	for _, s := range r.Sheets {
		if s.Outcome == o {
			n++
		}
	}
	return n
}

// SkippedTitles returns the worksheets that were permanently skipped.
func (r *RunReport) SkippedTitles() []string {
	var titles []string
	for _, s := range r.Sheets {
		if s.Outcome.Skipped() {
			titles = append(titles, s.Title)
		}
	}
	return titles
}

// Duration is the wall-clock time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
