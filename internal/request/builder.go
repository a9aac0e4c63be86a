// Package request assembles the execution request sent to the remote testing service.
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/osvaldoandrade/suiterun/pkg/domain"
)

const (
	DefaultBrowser   = "chrome"
	DefaultVariables = "{}"
)

// Params are the builder inputs. Screenshot is a pointer so that an unset value
// falls back to the default (true) instead of false.
type Params struct {
	ProjectID   string
	SuiteID     string
	Browser     string
	Screenshot  *bool
	Variables   string
	Retry       int
	HubURL      *string
	StartingURL *string
}

// Optional turns a raw input into an optional value. Empty, blank and the literal
// "null" all mean absent.
func Optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" || v == "null" {
		return nil
	}
	return &v
}

func Build(p Params) (domain.ExecutionRequest, error) {
	var problems []string
	projectID := strings.TrimSpace(p.ProjectID)
	suiteID := strings.TrimSpace(p.SuiteID)
	if projectID == "" {
		problems = append(problems, "project_id is required")
	}
	if suiteID == "" {
		problems = append(problems, "suite_id is required")
	}

	vars, err := normalizeVariables(p.Variables)
	if err != nil {
		problems = append(problems, err.Error())
	}
	if p.Retry < 0 {
		problems = append(problems, "retry must be >= 0")
	}
	if len(problems) > 0 {
		return domain.ExecutionRequest{}, domain.NewConfigurationError(problems...)
	}

	browser := strings.TrimSpace(p.Browser)
	if browser == "" {
		browser = DefaultBrowser
	}
	screenshot := true
	if p.Screenshot != nil {
		screenshot = *p.Screenshot
	}

	req := domain.ExecutionRequest{
		ProjectID:  projectID,
		SuiteID:    suiteID,
		Browser:    browser,
		Screenshot: screenshot,
		Strategy:   domain.StrategyCallback,
		Variables:  vars,
		Retry:      p.Retry,
	}
	if p.HubURL != nil {
		req.HubURL = Optional(*p.HubURL)
	}
	if p.StartingURL != nil {
		req.StartingURL = Optional(*p.StartingURL)
	}
	return req, nil
}

// Marshal serializes the request in the wire format.
func Marshal(req domain.ExecutionRequest) ([]byte, error) {
	if len(req.Variables) == 0 {
		req.Variables = json.RawMessage(DefaultVariables)
	}
	return json.Marshal(req)
}

func normalizeVariables(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return json.RawMessage(DefaultVariables), nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return nil, errVariables
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return nil, errVariables
	}
	return json.RawMessage(buf.Bytes()), nil
}

var errVariables = errors.New("variables must be a JSON object")
