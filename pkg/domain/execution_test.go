package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestOutcomeExitCode(t *testing.T) {
	tests := []struct {
		name    string
		outcome Outcome
		want    int
	}{
		{"passed", OutcomePassed, ExitSuccess},
		{"failed", OutcomeFailed, ExitTestFailure},
		{"timeout", OutcomeTimeout, ExitRuntimeErr},
		{"unknown", Outcome("SOMETHING"), ExitRuntimeErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.outcome.ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunningStatusTerminal(t *testing.T) {
	tests := []struct {
		status RunningStatus
		want   bool
	}{
		{RunningPending, false},
		{RunningRunning, false},
		{RunningCompleted, true},
		{RunningStatus("COMPLETED"), false},
		{RunningStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.Terminal(); got != tt.want {
				t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestExecutionRequestOmitsAbsentOptionals(t *testing.T) {
	req := ExecutionRequest{
		ProjectID: "p1",
		SuiteID:   "s1",
		Browser:   "chrome",
		Strategy:  StrategyCallback,
		Variables: json.RawMessage(`{}`),
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	body := string(b)
	if strings.Contains(body, "hub_url") || strings.Contains(body, "starting_url") {
		t.Errorf("expected optional keys to be omitted, got %s", body)
	}

	hub := "http://hub:4444"
	req.HubURL = &hub
	b, _ = json.Marshal(req)
	if !strings.Contains(string(b), `"hub_url":"http://hub:4444"`) {
		t.Errorf("expected hub_url in payload, got %s", string(b))
	}
}

func TestErrorMessagesNameStageAndHandle(t *testing.T) {
	netErr := &NetworkError{Stage: StageSubmission, Err: errors.New("connection refused")}
	if got := netErr.Error(); got != "submission: request failed: connection refused" {
		t.Errorf("unexpected message: %q", got)
	}

	protoErr := &ProtocolError{Stage: StagePolling, Handle: "exec-9", Msg: "malformed JSON response"}
	if got := protoErr.Error(); got != "polling: malformed JSON response (execution exec-9)" {
		t.Errorf("unexpected message: %q", got)
	}

	withStatus := &ProtocolError{Stage: StageSubmission, StatusCode: 500, Msg: "unexpected status"}
	if got := withStatus.Error(); got != "submission: unexpected status (http 500)" {
		t.Errorf("unexpected message: %q", got)
	}

	cfgErr := NewConfigurationError("PROJECT_ID is required", "SUITE_ID is required")
	if got := cfgErr.Error(); got != "invalid configuration: PROJECT_ID is required; SUITE_ID is required" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestStageOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Stage
	}{
		{"configuration", NewConfigurationError("x"), StageConfiguration},
		{"network", &NetworkError{Stage: StagePolling, Err: errors.New("eof")}, StagePolling},
		{"wrapped protocol", errors.Join(errors.New("ctx"), &ProtocolError{Stage: StageSubmission}), StageSubmission},
		{"plain", errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StageOf(tt.err); got != tt.want {
				t.Errorf("StageOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
