package models

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeUpstream     ErrorType = "upstream_unavailable"
	ErrorTypeMalformed    ErrorType = "malformed_output"
	ErrorTypePartialBatch ErrorType = "partial_batch_failure"
	ErrorTypeStage        ErrorType = "stage_failure"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"
)

type AppError struct {
	Type     ErrorType      `json:"type"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Cause    error          `json:"-"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code so sentinel errors survive WithMetadata copies.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Type == other.Type && e.Code == other.Code
}

func (e *AppError) WithCause(cause error) *AppError {
	clone := e.clone()
	clone.Cause = cause
	return clone
}

func (e *AppError) WithMetadata(key string, value any) *AppError {
	clone := e.clone()
	clone.Metadata[key] = value
	return clone
}

func (e *AppError) clone() *AppError {
	metadata := make(map[string]any, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	return &AppError{
		Type:     e.Type,
		Code:     e.Code,
		Message:  e.Message,
		Cause:    e.Cause,
		Metadata: metadata,
	}
}

func newError(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:     errorType,
		Code:     code,
		Message:  message,
		Metadata: make(map[string]any),
	}
}

func NewExternalError(code, message string) *AppError {
	return newError(ErrorTypeUpstream, code, message)
}

func NewTimeoutError(code, message string) *AppError {
	return newError(ErrorTypeTimeout, code, message)
}

func NewInternalError(code, message string) *AppError {
	return newError(ErrorTypeInternal, code, message)
}

func NewValidationError(code, message string) *AppError {
	return newError(ErrorTypeValidation, code, message)
}

func NewPartialBatchError(code, message string) *AppError {
	return newError(ErrorTypePartialBatch, code, message)
}

func NewMalformedOutputError(code, message string) *AppError {
	return newError(ErrorTypeMalformed, code, message)
}

func NewStageError(stage Stage, cause error) *AppError {
	return newError(ErrorTypeStage, "STAGE_FAILED", fmt.Sprintf("stage %s failed", stage)).WithCause(cause)
}

func WrapExternalError(service string, err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewExternalError(fmt.Sprintf("%s_UNAVAILABLE", service), fmt.Sprintf("%s call failed", service)).
		WithCause(err).
		WithMetadata("service", service)
}

var (
	ErrWorkflowNotFound = newError(ErrorTypeNotFound, "WORKFLOW_NOT_FOUND", "workflow not found")
	ErrEmptyQuery       = NewValidationError("EMPTY_QUERY", "query must not be empty")
	ErrNoCandidates     = NewExternalError("NO_CANDIDATES", "product source returned no results")
)

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == ErrorTypeNotFound
}

func IsTimeout(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == ErrorTypeTimeout
}
