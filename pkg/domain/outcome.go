package domain

import "time"

// Outcome is the aggregate result of one run.
type Outcome string

const (
	OutcomePassed  Outcome = "PASSED"
	OutcomeFailed  Outcome = "FAILED"
	OutcomeTimeout Outcome = "TIMEOUT"
)

// Exit codes used by the CLI.
//
// * ExitSuccess (0): every execution reported success
// * ExitTestFailure (1): at least one execution reported error
// * ExitRuntimeErr (2): polling timed out, or the run aborted on a fatal error
const (
	ExitSuccess     = 0
	ExitTestFailure = 1
	ExitRuntimeErr  = 2
)

func (o Outcome) ExitCode() int {
	switch o {
	case OutcomePassed:
		return ExitSuccess
	case OutcomeFailed:
		return ExitTestFailure
	default:
		return ExitRuntimeErr
	}
}

func (o Outcome) String() string { return string(o) }

// RunReport summarizes a finished run for reporters.
type RunReport struct {
	RunID    string
	Request  ExecutionRequest
	Result   PollResult
	Outcome  Outcome
	Duration float64 // seconds
}

// RunRecord is the compact history entry kept for a finished run.
type RunRecord struct {
	RunID           string    `json:"runId"`
	ProjectID       string    `json:"projectId"`
	SuiteID         string    `json:"suiteId"`
	Outcome         Outcome   `json:"outcome"`
	Executions      int       `json:"executions"`
	Failed          int       `json:"failed"`
	Pending         int       `json:"pending"`
	Rounds          int       `json:"rounds"`
	DurationSeconds float64   `json:"durationSeconds"`
	FinishedAt      time.Time `json:"finishedAt"`
}

func NewRunRecord(r RunReport, finishedAt time.Time) RunRecord {
	rec := RunRecord{
		RunID:           r.RunID,
		ProjectID:       r.Request.ProjectID,
		SuiteID:         r.Request.SuiteID,
		Outcome:         r.Outcome,
		Executions:      len(r.Result.Handles),
		Pending:         len(r.Result.Pending),
		Rounds:          r.Result.Rounds,
		DurationSeconds: r.Duration,
		FinishedAt:      finishedAt.UTC(),
	}
	for _, st := range r.Result.Final {
		if st.Status == VerdictError {
			rec.Failed++
		}
	}
	return rec
}
