// Package llm defines the language-model collaborator used by node
// handlers, with a Claude CLI implementation.
package llm

import (
	"context"
	"fmt"
)

// Client is the interface node handlers use to call a language model.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a completion request and returns the response.
	// The call may block for the duration of the request; it honors
	// cancellation through ctx.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Error wraps an LLM call failure.
type Error struct {
	// Op is the operation that failed (e.g., "complete").
	Op string
	// Err is the underlying error.
	Err error
	// Retryable reports whether the failure looks transient.
	Retryable bool
}

// NewError creates an Error.
func NewError(op string, err error, retryable bool) *Error {
	return &Error{Op: op, Err: err, Retryable: retryable}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient LLM failure.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}
