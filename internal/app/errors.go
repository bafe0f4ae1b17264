package app

import (
	"context"
	"errors"
	"fmt"

	"taskflow/internal/extractor"
	"taskflow/internal/graph"
	"taskflow/internal/store"
)

// ErrorCode classifies service errors for callers that need to react to the
// kind of failure rather than its text.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidInput
	ErrCodeNotFound
	ErrCodeConflict
	ErrCodeUnavailable
	ErrCodeTimeout
	ErrCodeCancelled
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidInput:
		return "invalid_input"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeConflict:
		return "conflict"
	case ErrCodeUnavailable:
		return "unavailable"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// AppError is a typed error with code for better error handling.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error with code.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf classifies err. An explicit AppError code wins; otherwise the
// sentinel errors of the graph, extractor and store packages decide.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	switch {
	case err == nil:
		return ErrCodeUnknown
	case errors.As(err, &appErr) && appErr.Code != ErrCodeUnknown:
		return appErr.Code
	case errors.Is(err, graph.ErrInvalidReference):
		return ErrCodeInvalidInput
	case errors.Is(err, graph.ErrConflict):
		return ErrCodeConflict
	case errors.Is(err, graph.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, extractor.ErrExtractorUnavailable), errors.Is(err, store.ErrClosed):
		return ErrCodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		return ErrCodeCancelled
	default:
		return ErrCodeUnknown
	}
}
