package toolloop

import (
	"errors"
	"fmt"
)

// Sentinel errors for toolloop. Use errors.Is to check.
var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrDeclarationOnly = errors.New("tool has no execution body")
	ErrTimeout         = errors.New("tool execution timeout")
	ErrMisconfigured   = errors.New("misconfigured pipeline")
)

// ClientError is an error that should be sent back to the LLM for self-correction
// (e.g. a bad argument value). Its Reason is reported to the model even when detailed
// errors are disabled, so do not put stack traces or internal details in it.
// Err optionally wraps a sentinel for errors.Is/errors.As.
type ClientError struct {
	Reason string
	Err    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("invalid tool input: %s", e.Reason)
}

// Unwrap supports errors.Is/errors.As on wrapped chains.
func (e *ClientError) Unwrap() error { return e.Err }

// SystemError represents an internal failure (DB down, panic, etc.).
// The LLM should not see the underlying error message or stack.
type SystemError struct {
	Err error
}

func (e *SystemError) Error() string {
	return "internal system error during tool execution"
}

func (e *SystemError) Unwrap() error { return e.Err }

// IsClientError returns true if err is or wraps a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsSystemError returns true if err is or wraps a SystemError.
func IsSystemError(err error) bool {
	var se *SystemError
	return errors.As(err, &se)
}

// misconfigured wraps ErrMisconfigured with a reason.
func misconfigured(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMisconfigured, fmt.Sprintf(format, args...))
}

// panicError wraps a recovered panic value for SystemError; used by the executor and WithRecovery middleware.
type panicError struct{ p any }

func (e *panicError) Error() string {
	return "panic: " + fmt.Sprint(e.p)
}
