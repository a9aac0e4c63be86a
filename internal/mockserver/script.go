// Package mockserver keeps the state of a scripted remote testing service: every
// submission queues a fixed number of executions, and each execution completes after
// it has been polled a configured number of times.
package mockserver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/suiterun/pkg/domain"
)

var (
	ErrNotFound        = errors.New("execution not found")
	ErrProjectMismatch = errors.New("execution belongs to another project")
)

type Options struct {
	// RoundsUntilComplete is how many status requests an execution answers with
	// running before it reports completed. 1 completes on the first poll.
	RoundsUntilComplete int
	// ExecutionsPerSubmit is how many executions one submission queues.
	ExecutionsPerSubmit int
	// FailIDs lists execution ids that complete with status error.
	FailIDs []string
	// NeverComplete keeps every execution running, for timeout drills.
	NeverComplete bool
}

type Execution struct {
	ID        string    `json:"execution_id"`
	ProjectID string    `json:"project_id"`
	SuiteID   string    `json:"suite_id"`
	Browser   string    `json:"browser"`
	CreatedAt time.Time `json:"created_at"`
	Polls     int       `json:"-"`
}

type Snapshot struct {
	ExecutionID   string               `json:"execution_id"`
	ProjectID     string               `json:"project_id"`
	SuiteID       string               `json:"suite_id"`
	RunningStatus domain.RunningStatus `json:"running_status"`
	Status        domain.Verdict       `json:"status,omitempty"`
	Polls         int                  `json:"polls"`
}

type Script struct {
	mu    sync.Mutex
	opts  Options
	fail  map[string]bool
	execs map[string]*Execution
	seq   int
	now   func() time.Time
}

func NewScript(opts Options, now func() time.Time) *Script {
	if opts.RoundsUntilComplete <= 0 {
		opts.RoundsUntilComplete = 1
	}
	if opts.ExecutionsPerSubmit <= 0 {
		opts.ExecutionsPerSubmit = 1
	}
	if now == nil {
		now = time.Now
	}
	fail := make(map[string]bool, len(opts.FailIDs))
	for _, id := range opts.FailIDs {
		if id = strings.TrimSpace(id); id != "" {
			fail[id] = true
		}
	}
	return &Script{opts: opts, fail: fail, execs: map[string]*Execution{}, now: now}
}

// Submit queues ExecutionsPerSubmit executions with ids exec-1, exec-2, ...
func (s *Script) Submit(req domain.ExecutionRequest) []Execution {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Execution, 0, s.opts.ExecutionsPerSubmit)
	for i := 0; i < s.opts.ExecutionsPerSubmit; i++ {
		s.seq++
		e := &Execution{
			ID:        fmt.Sprintf("exec-%d", s.seq),
			ProjectID: req.ProjectID,
			SuiteID:   req.SuiteID,
			Browser:   req.Browser,
			CreatedAt: s.now().UTC(),
		}
		s.execs[e.ID] = e
		out = append(out, *e)
	}
	return out
}

// Status counts one poll against id and returns its state after that poll.
func (s *Script) Status(projectID, id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.execs[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	if e.ProjectID != projectID {
		return Snapshot{}, ErrProjectMismatch
	}
	e.Polls++

	snap := Snapshot{
		ExecutionID:   e.ID,
		ProjectID:     e.ProjectID,
		SuiteID:       e.SuiteID,
		RunningStatus: domain.RunningRunning,
		Polls:         e.Polls,
	}
	if !s.opts.NeverComplete && e.Polls >= s.opts.RoundsUntilComplete {
		snap.RunningStatus = domain.RunningCompleted
		snap.Status = domain.VerdictSuccess
		if s.fail[e.ID] {
			snap.Status = domain.VerdictError
		}
	}
	return snap, nil
}

func (s *Script) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.execs)
}
