// Package health reports the progress of the current run over HTTP.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/sheetmerge/internal/core/domain"
	"github.com/vietddude/sheetmerge/internal/infra/sheets"
)

// SystemStatus represents the overall health state of the run.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Phase is the pipeline stage a run is in.
type Phase string

const (
	PhaseStarting  Phase = "starting"
	PhaseIngesting Phase = "ingesting"
	PhaseMerging   Phase = "merging"
	PhaseWriting   Phase = "writing"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// FailedCounter is satisfied by the failed-sheet ledger.
type FailedCounter interface {
	Count(ctx context.Context) (int, error)
}

// APIStatter is implemented by sources that track their API calls.
type APIStatter interface {
	Stats() sheets.MonitorStats
}

// Report is the detailed health payload.
type Report struct {
	Status       SystemStatus           `json:"status"`
	RunID        string                 `json:"run_id"`
	Phase        Phase                  `json:"phase"`
	Uptime       string                 `json:"uptime"`
	Sheets       map[domain.Outcome]int `json:"sheets"`
	FailedSheets int                    `json:"failed_sheets"`
	API          *sheets.MonitorStats   `json:"api,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Monitor tracks the state of one run.
type Monitor struct {
	mu       sync.RWMutex
	runID    string
	phase    Phase
	started  time.Time
	outcomes map[string]domain.Outcome
	err      string
	failed   FailedCounter
	api      APIStatter
}

// NewMonitor creates a monitor for the given run.
func NewMonitor(runID string, failed FailedCounter) *Monitor {
	return &Monitor{
		runID:    runID,
		phase:    PhaseStarting,
		started:  time.Now(),
		outcomes: make(map[string]domain.Outcome),
		failed:   failed,
	}
}

// SetAPI includes the source's call statistics in reports.
func (m *Monitor) SetAPI(api APIStatter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.api = api
}

// SetPhase moves the run to the next stage.
func (m *Monitor) SetPhase(p Phase) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = p
}

// Fail marks the run as failed.
func (m *Monitor) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseFailed
	if err != nil {
		m.err = err.Error()
	}
}

// Observe records the latest outcome of a worksheet.
func (m *Monitor) Observe(title string, o domain.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[title] = o
}

// CheckHealth builds the current report. Skipped worksheets and an unhealthy
// API degrade the status; a failed run is critical.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.RLock()
	report := Report{
		Status: StatusHealthy,
		RunID:  m.runID,
		Phase:  m.phase,
		Uptime: time.Since(m.started).Round(time.Second).String(),
		Sheets: make(map[domain.Outcome]int),
		Error:  m.err,
	}
	for _, o := range m.outcomes {
		report.Sheets[o]++
		if o.Skipped() {
			report.Status = StatusDegraded
		}
	}
	api := m.api
	m.mu.RUnlock()

	if api != nil {
		stats := api.Stats()
		report.API = &stats
		if stats.Status != sheets.APIHealthy {
			report.Status = StatusDegraded
		}
	}

	if report.Phase == PhaseFailed {
		report.Status = StatusCritical
	}

	if m.failed != nil {
		if n, err := m.failed.Count(ctx); err == nil {
			report.FailedSheets = n
		}
	}
	return report
}
