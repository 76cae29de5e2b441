package errors

import "fmt"

// ErrorCode represents a Resonate error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"       // 400
	ErrNotFound             ErrorCode = "NOT_FOUND"             // 404
	ErrReasoningUnavailable ErrorCode = "REASONING_UNAVAILABLE" // 502
	ErrInternal             ErrorCode = "INTERNAL"              // 500
)

// PipelineError represents a structured error with code, status, and details.
type PipelineError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *PipelineError {
	return &PipelineError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entity.
func NewNotFound(kind, identifier string) *PipelineError {
	return &PipelineError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewReasoningUnavailable creates a 502 error for reasoning-service failures.
// These are fatal for the current pipeline run.
func NewReasoningUnavailable(err error) *PipelineError {
	msg := "reasoning service unavailable"
	if err != nil {
		msg = err.Error()
	}
	return &PipelineError{
		Code:    ErrReasoningUnavailable,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *PipelineError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &PipelineError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a PipelineError with the given code.
func Is(err error, code ErrorCode) bool {
	if pErr, ok := err.(*PipelineError); ok {
		return pErr.Code == code
	}
	return false
}
