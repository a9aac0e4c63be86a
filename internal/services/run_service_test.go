package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/osvaldoandrade/suiterun/internal/client"
	"github.com/osvaldoandrade/suiterun/internal/providers"
	"github.com/osvaldoandrade/suiterun/internal/request"
	"github.com/osvaldoandrade/suiterun/pkg/domain"
)

// remoteAPI simulates the testing service: each execution reports "running" until
// it has been polled completeAfter times.
type remoteAPI struct {
	mu            sync.Mutex
	ids           []string
	verdicts      map[string]string
	completeAfter int
	polls         map[string]int
	malformedFor  string
}

func (a *remoteAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/suites/execute", func(w http.ResponseWriter, r *http.Request) {
		var execs []map[string]string
		for _, id := range a.ids {
			execs = append(execs, map[string]string{"execution_id": id})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"executions": execs})
	})
	mux.HandleFunc("/suites/executions", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("execution_id")
		a.mu.Lock()
		a.polls[id]++
		n := a.polls[id]
		a.mu.Unlock()
		if id == a.malformedFor {
			_, _ = w.Write([]byte("upstream timeout"))
			return
		}
		data := map[string]string{"running_status": "running", "status": ""}
		if n >= a.completeAfter {
			data = map[string]string{"running_status": "completed", "status": a.verdicts[id]}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	})
	return mux
}

func newRemoteAPI(ids []string, verdicts map[string]string, completeAfter int) *remoteAPI {
	return &remoteAPI{ids: ids, verdicts: verdicts, completeAfter: completeAfter, polls: map[string]int{}}
}

func buildRun(t *testing.T, baseURL, dir string, maxAttempts int, hooks RunHooks) RunService {
	t.Helper()
	req, err := request.Build(request.Params{ProjectID: "proj", SuiteID: "suite"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c := client.New(baseURL, "token")
	store := providers.NewLocalUploader(dir)
	poller := NewPollerService(c, store, nil, PollerOptions{
		ProjectID:   req.ProjectID,
		MaxAttempts: maxAttempts,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	})
	return NewRunService(req, c, poller, NewAggregatorService(store, nil), nil, nil, "run-test", hooks)
}

func TestRunEndToEndPassed(t *testing.T) {
	api := newRemoteAPI([]string{"e1", "e2"}, map[string]string{"e1": "success", "e2": "success"}, 2)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	dir := t.TempDir()

	var submitted []domain.ExecutionHandle
	run := buildRun(t, srv.URL, dir, 5, RunHooks{
		OnSubmitted: func(h []domain.ExecutionHandle, err error) { submitted = h },
	})
	report, err := run.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != domain.OutcomePassed || report.RunID != "run-test" {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Result.Rounds != 2 {
		t.Errorf("Rounds = %d, want 2", report.Result.Rounds)
	}
	if len(submitted) != 2 {
		t.Errorf("OnSubmitted handles = %v", submitted)
	}
	for _, id := range []string{"e1", "e2"} {
		if _, err := os.Stat(filepath.Join(dir, "executions", id+".json")); err != nil {
			t.Errorf("missing persisted result for %s: %v", id, err)
		}
	}
	marker, _ := os.ReadFile(filepath.Join(dir, SummaryObjectPath))
	if string(marker) != "PASSED" {
		t.Errorf("marker = %q", string(marker))
	}
}

func TestRunEndToEndFailed(t *testing.T) {
	api := newRemoteAPI([]string{"e1", "e2"}, map[string]string{"e1": "success", "e2": "error"}, 1)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	dir := t.TempDir()

	report, err := buildRun(t, srv.URL, dir, 3, RunHooks{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != domain.OutcomeFailed || report.Outcome.ExitCode() != domain.ExitTestFailure {
		t.Errorf("outcome = %s", report.Outcome)
	}
}

type countingPoller struct{ calls int }

func (p *countingPoller) Poll(ctx context.Context, handles []domain.ExecutionHandle) (domain.PollResult, error) {
	p.calls++
	return domain.PollResult{}, nil
}

func TestRunAbortsBeforePollingWithoutExecutionIDs(t *testing.T) {
	api := newRemoteAPI(nil, nil, 1)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	dir := t.TempDir()

	req, _ := request.Build(request.Params{ProjectID: "proj", SuiteID: "suite"})
	poller := &countingPoller{}
	store := providers.NewLocalUploader(dir)
	run := NewRunService(req, client.New(srv.URL, "t"), poller, NewAggregatorService(store, nil), nil, nil, "", RunHooks{})

	report, err := run.Run(context.Background())
	var protoErr *domain.ProtocolError
	if !errors.As(err, &protoErr) || protoErr.Stage != domain.StageSubmission {
		t.Fatalf("expected submission ProtocolError, got %v", err)
	}
	if poller.calls != 0 {
		t.Errorf("poller called %d times", poller.calls)
	}
	if report.RunID == "" {
		t.Error("expected generated run id")
	}
	if _, err := os.Stat(filepath.Join(dir, SummaryObjectPath)); !os.IsNotExist(err) {
		t.Error("no summary marker may be written on a fatal error")
	}
}

func TestRunMalformedPollWritesNoMarker(t *testing.T) {
	api := newRemoteAPI([]string{"e1", "e2"}, map[string]string{"e1": "success", "e2": "success"}, 1)
	api.malformedFor = "e2"
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	dir := t.TempDir()

	report, err := buildRun(t, srv.URL, dir, 3, RunHooks{}).Run(context.Background())
	var protoErr *domain.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if protoErr.Stage != domain.StagePolling || protoErr.Handle != "e2" {
		t.Errorf("unexpected error fields: %+v", protoErr)
	}
	if report.Outcome != "" {
		t.Errorf("outcome = %q, want none", report.Outcome)
	}
	if _, err := os.Stat(filepath.Join(dir, SummaryObjectPath)); !os.IsNotExist(err) {
		t.Error("no summary marker may be written on a fatal error")
	}
}

func TestRunTimeout(t *testing.T) {
	api := newRemoteAPI([]string{"e1"}, map[string]string{"e1": "success"}, 100)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()
	dir := t.TempDir()

	report, err := buildRun(t, srv.URL, dir, 4, RunHooks{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Outcome != domain.OutcomeTimeout || report.Result.Rounds != 4 {
		t.Errorf("unexpected report: outcome=%s rounds=%d", report.Outcome, report.Result.Rounds)
	}
	marker, _ := os.ReadFile(filepath.Join(dir, SummaryObjectPath))
	if string(marker) != "TIMEOUT" {
		t.Errorf("marker = %q", string(marker))
	}
}

func TestRunLogsRunIDOnce(t *testing.T) {
	api := newRemoteAPI([]string{"e1"}, map[string]string{"e1": "success"}, 1)
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("run_id", "run-test")
	req, err := request.Build(request.Params{ProjectID: "proj", SuiteID: "suite"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	c := client.New(srv.URL, "token")
	store := providers.NewLocalUploader(t.TempDir())
	poller := NewPollerService(c, store, nil, PollerOptions{ProjectID: req.ProjectID, MaxAttempts: 1})
	run := NewRunService(req, c, poller, NewAggregatorService(store, nil), logger, nil, "run-test", RunHooks{})

	if _, err := run.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("expected run log lines")
	}
	for _, line := range lines {
		if n := strings.Count(line, "run_id="); n != 1 {
			t.Errorf("run_id appears %d times in %q", n, line)
		}
	}
}
