// Package client talks to the remote testing service: it submits suite executions
// and fetches the status of a single execution.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/osvaldoandrade/suiterun/internal/request"
	"github.com/osvaldoandrade/suiterun/internal/tracing"
	"github.com/osvaldoandrade/suiterun/pkg/domain"
)

const (
	TokenHeader    = "x-api-token"
	DefaultTimeout = 30 * time.Second

	executePath    = "/suites/execute"
	executionsPath = "/suites/executions"

	maxBodyInError = 512
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

type Option func(*Client)

// WithTimeout bounds every request; the remote contract does not define one.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = strings.TrimSpace(ua) }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type submitResponse struct {
	Executions []struct {
		ExecutionID json.RawMessage `json:"execution_id"`
	} `json:"executions"`
}

// Submit issues POST /suites/execute and returns the queued execution handles in
// response order. An empty handle list is a ProtocolError, never "nothing to do".
func (c *Client) Submit(ctx context.Context, req domain.ExecutionRequest) ([]domain.ExecutionHandle, error) {
	body, err := request.Marshal(req)
	if err != nil {
		return nil, domain.NewConfigurationError(fmt.Sprintf("encode execution request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+executePath, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewConfigurationError(fmt.Sprintf("base url: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.decorate(ctx, httpReq)

	status, raw, err := c.do(httpReq)
	if err != nil {
		return nil, &domain.NetworkError{Stage: domain.StageSubmission, Err: err}
	}
	c.logger.Debug("submission response", "status", status, "bytes", len(raw))

	if !json.Valid(raw) {
		return nil, &domain.ProtocolError{Stage: domain.StageSubmission, StatusCode: status, Msg: "malformed JSON response: " + snippet(raw)}
	}
	if status < 200 || status >= 300 {
		return nil, &domain.ProtocolError{Stage: domain.StageSubmission, StatusCode: status, Msg: "unexpected status: " + snippet(raw)}
	}

	var out submitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &domain.ProtocolError{Stage: domain.StageSubmission, StatusCode: status, Msg: "unexpected response shape", Err: err}
	}
	handles := make([]domain.ExecutionHandle, 0, len(out.Executions))
	seen := make(map[domain.ExecutionHandle]struct{}, len(out.Executions))
	for _, e := range out.Executions {
		h := handleFromJSON(e.ExecutionID)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		handles = append(handles, h)
	}
	if len(handles) == 0 {
		return nil, &domain.ProtocolError{Stage: domain.StageSubmission, StatusCode: status, Msg: "no execution ids in response"}
	}
	return handles, nil
}

type statusResponse struct {
	Data struct {
		RunningStatus domain.RunningStatus `json:"running_status"`
		Status        domain.Verdict       `json:"status"`
	} `json:"data"`
}

// Status issues GET /suites/executions for one handle. Cache-busting headers keep
// proxies from serving a stale status.
func (c *Client) Status(ctx context.Context, projectID string, h domain.ExecutionHandle) (domain.ExecutionStatus, error) {
	q := url.Values{}
	q.Set("execution_id", string(h))
	q.Set("project_id", projectID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+executionsPath+"?"+q.Encode(), nil)
	if err != nil {
		return domain.ExecutionStatus{}, &domain.ProtocolError{Stage: domain.StagePolling, Handle: h, Msg: "build request", Err: err}
	}
	httpReq.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	httpReq.Header.Set("Pragma", "no-cache")
	httpReq.Header.Set("Expires", "0")
	c.decorate(ctx, httpReq)

	status, raw, err := c.do(httpReq)
	if err != nil {
		return domain.ExecutionStatus{}, &domain.NetworkError{Stage: domain.StagePolling, Handle: h, Err: err}
	}
	if !json.Valid(raw) {
		return domain.ExecutionStatus{}, &domain.ProtocolError{Stage: domain.StagePolling, Handle: h, StatusCode: status, Msg: "malformed JSON response: " + snippet(raw)}
	}
	if status < 200 || status >= 300 {
		return domain.ExecutionStatus{}, &domain.ProtocolError{Stage: domain.StagePolling, Handle: h, StatusCode: status, Msg: "unexpected status: " + snippet(raw)}
	}

	var out statusResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.ExecutionStatus{}, &domain.ProtocolError{Stage: domain.StagePolling, Handle: h, StatusCode: status, Msg: "unexpected response shape", Err: err}
	}
	return domain.ExecutionStatus{
		Handle:        h,
		RunningStatus: out.Data.RunningStatus,
		Status:        out.Data.Status,
		Raw:           raw,
	}, nil
}

func (c *Client) decorate(ctx context.Context, req *http.Request) {
	req.Header.Set(TokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	tracing.InjectHeaders(ctx, req.Header)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, out, nil
}

// handleFromJSON accepts string or numeric ids.
func handleFromJSON(raw json.RawMessage) domain.ExecutionHandle {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return domain.ExecutionHandle(strings.TrimSpace(s))
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return domain.ExecutionHandle(n.String())
	}
	return ""
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "<empty body>"
	}
	if len(s) > maxBodyInError {
		return s[:maxBodyInError] + "..."
	}
	return s
}
