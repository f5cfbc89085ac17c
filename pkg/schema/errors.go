package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeExecution       = "EXECUTION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeTerminalState   = "TERMINAL_STATE_VIOLATION"
	ErrCodeLoopBound       = "LOOP_BOUND_EXCEEDED"
	ErrCodeUnmatchedBranch = "UNMATCHED_BRANCH"
	ErrCodeAgentFailure    = "AGENT_INVOCATION_FAILURE"
	ErrCodeIrreversible    = "IRREVERSIBLE_ENTRY"
	ErrCodeRetryExhausted  = "RETRY_EXHAUSTED"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeStore           = "STORE_ERROR"
)

// LoomError is the structured error type for all taskloom operations.
type LoomError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *LoomError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *LoomError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LoomError.
func NewError(code, message string) *LoomError {
	return &LoomError{Code: code, Message: message}
}

// NewErrorf creates a new LoomError with a formatted message.
func NewErrorf(code, format string, args ...any) *LoomError {
	return &LoomError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a workflow node ID to the error.
func (e *LoomError) WithNode(nodeID string) *LoomError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *LoomError) WithCause(err error) *LoomError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *LoomError) WithDetails(details map[string]any) *LoomError {
	e.Details = details
	return e
}

// IsRetryable reports whether the error denotes a transient condition the
// engine may retry. Graph-definitional errors and state violations never are.
func (e *LoomError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeAgentFailure, ErrCodeStore:
		return true
	default:
		return false
	}
}

// Fatal reports whether the error denotes a definitional problem that must
// stop the task rather than be retried.
func (e *LoomError) Fatal() bool {
	return e.Code == ErrCodeLoopBound || e.Code == ErrCodeUnmatchedBranch
}
