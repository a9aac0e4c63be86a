package domain

import (
	"errors"
	"fmt"
	"strings"
)

type Stage string

const (
	StageConfiguration Stage = "configuration"
	StageSubmission    Stage = "submission"
	StagePolling       Stage = "polling"
)

// ConfigurationError reports missing or invalid inputs. It is raised before any network call.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func NewConfigurationError(problems ...string) *ConfigurationError {
	return &ConfigurationError{Problems: problems}
}

// NetworkError wraps a transport failure talking to the remote service.
type NetworkError struct {
	Stage  Stage
	Handle ExecutionHandle
	Err    error
}

func (e *NetworkError) Error() string {
	return stageMessage(e.Stage, e.Handle, "request failed: "+e.Err.Error())
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError reports a response that cannot be used: malformed JSON, an unexpected
// HTTP status, or a submission without execution ids.
type ProtocolError struct {
	Stage      Stage
	Handle     ExecutionHandle
	StatusCode int
	Msg        string
	Err        error
}

func (e *ProtocolError) Error() string {
	msg := e.Msg
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return stageMessage(e.Stage, e.Handle, msg)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func stageMessage(stage Stage, h ExecutionHandle, msg string) string {
	if h != "" {
		return fmt.Sprintf("%s: %s (execution %s)", stage, msg, h)
	}
	return fmt.Sprintf("%s: %s", stage, msg)
}

// StageOf returns the stage a fatal error belongs to, or "" when unknown.
func StageOf(err error) Stage {
	var cfgErr *ConfigurationError
	var netErr *NetworkError
	var protoErr *ProtocolError
	switch {
	case errors.As(err, &cfgErr):
		return StageConfiguration
	case errors.As(err, &netErr):
		return netErr.Stage
	case errors.As(err, &protoErr):
		return protoErr.Stage
	}
	return ""
}
