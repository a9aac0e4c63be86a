package domain

import "encoding/json"

// Strategy is the only notification strategy the remote service is asked for.
const StrategyCallback = "callback"

// ExecutionHandle identifies one execution queued by the remote service.
type ExecutionHandle string

func (h ExecutionHandle) String() string { return string(h) }

type RunningStatus string

const (
	RunningPending   RunningStatus = "pending"
	RunningRunning   RunningStatus = "running"
	RunningCompleted RunningStatus = "completed"
)

// Terminal reports whether the remote service finished the execution.
func (s RunningStatus) Terminal() bool { return s == RunningCompleted }

type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictError   Verdict = "error"
)

// ExecutionRequest is the body of POST /suites/execute.
// HubURL and StartingURL are omitted from the payload when nil.
type ExecutionRequest struct {
	ProjectID   string          `json:"project_id" yaml:"projectId"`
	SuiteID     string          `json:"suite_id" yaml:"suiteId"`
	Browser     string          `json:"browser" yaml:"browser"`
	Screenshot  bool            `json:"screenshot" yaml:"screenshot"`
	Strategy    string          `json:"strategy" yaml:"strategy"`
	Variables   json.RawMessage `json:"variables" yaml:"-"`
	Retry       int             `json:"retry" yaml:"retry"`
	HubURL      *string         `json:"hub_url,omitempty" yaml:"hubUrl,omitempty"`
	StartingURL *string         `json:"starting_url,omitempty" yaml:"startingUrl,omitempty"`
}

// ExecutionStatus is the latest state the remote service reported for a handle.
// Raw keeps the response body untouched so it can be persisted as-is.
type ExecutionStatus struct {
	Handle        ExecutionHandle `json:"execution_id"`
	RunningStatus RunningStatus   `json:"running_status"`
	Status        Verdict         `json:"status"`
	Raw           []byte          `json:"-"`
}

func (s ExecutionStatus) Terminal() bool { return s.RunningStatus.Terminal() }

// PollResult is what the poller hands to the aggregator once polling stops.
type PollResult struct {
	Handles  []ExecutionHandle
	Final    map[ExecutionHandle]ExecutionStatus
	Rounds   int
	TimedOut bool
	// Pending lists handles that never reached a terminal state, in submission order.
	Pending []ExecutionHandle
}
