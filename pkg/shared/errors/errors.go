package errors

import (
	"errors"
	"fmt"
)

// Phase names the stage of a run an error originated from.
type Phase string

const (
	PhaseRequest       Phase = "request loading"
	PhaseServerStart   Phase = "server start"
	PhaseProjectCreate Phase = "project creation"
	PhaseSettings      Phase = "server settings"
	PhaseProfiles      Phase = "quality profile setup"
	PhaseBuild         Phase = "build"
	PhaseScan          Phase = "scan"
	PhaseTask          Phase = "task completion"
	PhaseIssues        Phase = "issue extraction"
	PhaseOutput        Phase = "result output"
)

// AnalyzeKind classifies an AnalyzeTaskError.
type AnalyzeKind string

const (
	KindGeneric          AnalyzeKind = "generic"
	KindTimeout          AnalyzeKind = "timeout"
	KindSchedulerRestart AnalyzeKind = "scheduler-restart"
	KindHeapExhausted    AnalyzeKind = "heap-exhausted"
	KindDiskSpace        AnalyzeKind = "disk-space"
	KindUnclassified     AnalyzeKind = "unclassified"
	KindScanFailed       AnalyzeKind = "scan-failed"
)

// Exit codes returned by the CLI for each fatal error class.
const (
	ExitGeneric = 1
	ExitConfig  = 2
	ExitCompile = 3
	ExitAnalyze = 4
)

// ConfigError reports a bad or missing configuration input. It is never retried.
type ConfigError struct {
	Phase Phase
	Msg   string
	Err   error
}

func (e *ConfigError) Error() string {
	return format("configuration error", e.Phase, e.Msg, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError creates a ConfigError for the given phase.
func NewConfigError(phase Phase, err error, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Phase: phase, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CompileTaskError reports a failed build step.
type CompileTaskError struct {
	Phase Phase
	Msg   string
	Err   error
}

func (e *CompileTaskError) Error() string {
	return format("build failed", e.Phase, e.Msg, e.Err)
}

func (e *CompileTaskError) Unwrap() error { return e.Err }

// NewCompileTaskError creates a CompileTaskError for the given phase.
func NewCompileTaskError(phase Phase, err error, format string, args ...interface{}) *CompileTaskError {
	return &CompileTaskError{Phase: phase, Msg: fmt.Sprintf(format, args...), Err: err}
}

// AnalyzeTaskError reports a failed scan, an unreachable server, a failed
// compute task or an exceeded wait deadline.
type AnalyzeTaskError struct {
	Phase Phase
	Kind  AnalyzeKind
	Msg   string
	Err   error
}

func (e *AnalyzeTaskError) Error() string {
	return format("analysis failed", e.Phase, e.Msg, e.Err)
}

func (e *AnalyzeTaskError) Unwrap() error { return e.Err }

// NewAnalyzeTaskError creates an AnalyzeTaskError of the given kind.
func NewAnalyzeTaskError(phase Phase, kind AnalyzeKind, err error, format string, args ...interface{}) *AnalyzeTaskError {
	return &AnalyzeTaskError{Phase: phase, Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsTimeout reports whether err is a wait deadline AnalyzeTaskError.
func IsTimeout(err error) bool {
	var ae *AnalyzeTaskError
	return errors.As(err, &ae) && ae.Kind == KindTimeout
}

// KindOf returns the AnalyzeKind carried by err, or "" when err is not an AnalyzeTaskError.
func KindOf(err error) AnalyzeKind {
	var ae *AnalyzeTaskError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// CommandError carries the process exit code chosen for a fatal error.
type CommandError struct {
	ExitCode int
	Err      error
}

// Error implements the error interface, returning the message from the wrapped error.
func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error { return e.Err }

// NewCommandError wraps err with the exit code matching its class.
func NewCommandError(err error) *CommandError {
	return &CommandError{ExitCode: ExitCode(err), Err: err}
}

// ExitCode maps an error to the CLI exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var (
		ce  *CommandError
		cfg *ConfigError
		cpl *CompileTaskError
		an  *AnalyzeTaskError
	)
	switch {
	case errors.As(err, &ce):
		return ce.ExitCode
	case errors.As(err, &cfg):
		return ExitConfig
	case errors.As(err, &cpl):
		return ExitCompile
	case errors.As(err, &an):
		return ExitAnalyze
	default:
		return ExitGeneric
	}
}

func format(prefix string, phase Phase, msg string, err error) string {
	s := prefix
	if phase != "" {
		s = fmt.Sprintf("%s during %s", s, phase)
	}
	s = fmt.Sprintf("%s: %s", s, msg)
	if err != nil {
		s = fmt.Sprintf("%s: %v", s, err)
	}
	return s
}
