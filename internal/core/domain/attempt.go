package domain

// Outcome is the terminal (or pending) state of one worksheet in a run.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeEmpty     Outcome = "empty"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeExhausted Outcome = "exhausted"
)

// Terminal reports whether no further attempts will be made.
func (o Outcome) Terminal() bool {
	return o != OutcomePending
}

// Skipped reports whether the worksheet was permanently dropped because of a failure.
func (o Outcome) Skipped() bool {
	return o == OutcomeInvalid || o == OutcomeExhausted
}

// AttemptState is the per-worksheet bookkeeping of one ingestion run.
type AttemptState struct {
	Title    string
	Attempts int
	Outcome  Outcome
	// Err is the last failure seen, or the structural defect for invalid sheets.
	Err error
}

// FailedSheet is a ledger entry for a worksheet that was skipped by a run.
type FailedSheet struct {
	Title        string  `json:"title"`
	Outcome      Outcome `json:"outcome"`
	Error        string  `json:"error_msg"`
	FailureCount int     `json:"failure_count"`
	LastRunID    string  `json:"last_run_id"`
	LastFailedAt int64   `json:"last_failed_at"`
}
