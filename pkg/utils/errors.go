package utils

import (
	"errors"
	"fmt"
)

// Error taxonomy for the crawler. Kinds are stable strings so they can
// be recorded on per-query failure slots and inspected with errors.As.
// Callers wrap these with fmt.Errorf("...: %w", err) but never replace
// them, so the kind always survives to the orchestrator.

// SessionErrorKind tags browser session failures.
type SessionErrorKind string

const (
	SessionInitFailed  SessionErrorKind = "init_failed"
	SessionAlreadyOpen SessionErrorKind = "already_open"
)

// SessionError reports a browser session lifecycle failure.
type SessionError struct {
	Kind   SessionErrorKind
	Detail string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s", e.Kind, e.Detail)
}

func NewSessionError(kind SessionErrorKind, detail string) *SessionError {
	return &SessionError{Kind: kind, Detail: detail}
}

// AgentErrorKind tags navigation agent failures.
type AgentErrorKind string

const (
	AgentUnreachable       AgentErrorKind = "unreachable"
	AgentTimeout           AgentErrorKind = "timeout"
	AgentProviderAuth      AgentErrorKind = "provider_auth"
	AgentGoalNotUnderstood AgentErrorKind = "goal_not_understood"
)

// AgentError reports a navigation agent failure. ProviderAuth is
// non-retryable; every other kind may be retried up to the
// orchestrator's attempt budget.
type AgentError struct {
	Kind   AgentErrorKind
	Detail string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent %s: %s", e.Kind, e.Detail)
}

// Retryable reports whether the orchestrator may retry after this error.
func (e *AgentError) Retryable() bool {
	return e.Kind != AgentProviderAuth
}

func NewAgentError(kind AgentErrorKind, detail string) *AgentError {
	return &AgentError{Kind: kind, Detail: detail}
}

// ExtractionErrorKind tags deterministic extraction failures.
type ExtractionErrorKind string

const (
	ExtractEmptyResult    ExtractionErrorKind = "empty_result"
	ExtractLayoutMismatch ExtractionErrorKind = "layout_mismatch"
	ExtractRateLimited    ExtractionErrorKind = "rate_limited"
)

// ExtractionError reports a deterministic extraction failure. All kinds
// are recoverable per-query; RateLimited additionally triggers an
// inter-query backoff.
type ExtractionError struct {
	Kind   ExtractionErrorKind
	Detail string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %s", e.Kind, e.Detail)
}

func NewExtractionError(kind ExtractionErrorKind, detail string) *ExtractionError {
	return &ExtractionError{Kind: kind, Detail: detail}
}

// LocationErrorKind tags delivery-location setup failures.
type LocationErrorKind string

const (
	// LocationUnstable means the deterministic fallback exhausted its
	// attempt budget without confirming the address.
	LocationUnstable LocationErrorKind = "unstable"
	// LocationAgentFailed means the agent path was tried and neither it
	// nor the fallback confirmed the address.
	LocationAgentFailed LocationErrorKind = "agent_failed"
)

// LocationError is fatal: no queries are attempted without a confirmed
// delivery location.
type LocationError struct {
	Kind   LocationErrorKind
	Detail string
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("location %s: %s", e.Kind, e.Detail)
}

func NewLocationError(kind LocationErrorKind, detail string) *LocationError {
	return &LocationError{Kind: kind, Detail: detail}
}

// AsAgentError unwraps err to an *AgentError if one is in its chain.
func AsAgentError(err error) (*AgentError, bool) {
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// AsExtractionError unwraps err to an *ExtractionError if one is in its chain.
func AsExtractionError(err error) (*ExtractionError, bool) {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// FailKind returns the stable kind string recorded on a query failure
// slot for the given error chain.
func FailKind(err error) string {
	if ee, ok := AsExtractionError(err); ok {
		return string(ee.Kind)
	}
	if ae, ok := AsAgentError(err); ok {
		return "agent_" + string(ae.Kind)
	}
	var se *SessionError
	if errors.As(err, &se) {
		return "session_" + string(se.Kind)
	}
	var le *LocationError
	if errors.As(err, &le) {
		return "location_" + string(le.Kind)
	}
	return "unknown"
}
