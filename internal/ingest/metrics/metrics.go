package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorksheetsTotal tracks worksheets by final outcome
	WorksheetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetmerge_worksheets_total",
			Help: "Total number of worksheets by ingestion outcome",
		},
		[]string{"outcome"},
	)

	// FetchAttemptsTotal tracks worksheet-level fetch attempts
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetmerge_fetch_attempts_total",
			Help: "Total number of worksheet fetch attempts",
		},
		[]string{"result"},
	)

	// CallRetriesTotal tracks per-call retries of sheets API operations
	CallRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetmerge_call_retries_total",
			Help: "Total number of retried sheets API calls",
		},
		[]string{"op"},
	)

	// RoundsTotal tracks ingestion rounds
	RoundsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetmerge_rounds_total",
			Help: "Total number of ingestion rounds",
		},
	)

	// RowsDroppedTotal tracks rows removed by each cleaning stage
	RowsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetmerge_rows_dropped_total",
			Help: "Total number of rows dropped during cleaning",
		},
		[]string{"stage"},
	)

	// NamesFilledTotal tracks names derived from email addresses
	NamesFilledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sheetmerge_names_filled_total",
			Help: "Total number of names derived from email addresses",
		},
	)

	// RecordsWritten tracks the size of the last written combined table
	RecordsWritten = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sheetmerge_records_written",
			Help: "Number of records written by the last run",
		},
	)

	// RunDuration tracks wall-clock run time
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sheetmerge_run_duration_seconds",
			Help:    "Run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)
