package model

import (
	"errors"
	"fmt"
)

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	ErrValidation   ErrorCode = "VALIDATION_ERROR"
	ErrNotFound     ErrorCode = "NOT_FOUND"
	ErrConflict     ErrorCode = "CONFLICT"
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the SeqFlow API.
type APIError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewValidationError creates an APIError with validation details.
func NewValidationError(msg string, details ...FieldError) *APIError {
	return &APIError{Code: ErrValidation, Message: msg, Details: details}
}

// NotFoundError signals that a resource does not exist: a submission
// deleted mid-flight, an unknown workflow id, or a remote locator that no
// longer resolves. It is not retryable.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// IsNotFound returns true if err signals a missing resource.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// PreconditionError is returned when a pipeline stage is invoked on a
// submission whose persisted state does not match the stage's required
// state. It signals a caller logic error or a benign retry race; repeating
// the call will not succeed.
type PreconditionError struct {
	SubmissionID string
	Expected     SubmissionState
	Actual       SubmissionState
	Reason       string
}

func (e *PreconditionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("submission %s: precondition failed: %s", e.SubmissionID, e.Reason)
	}
	return fmt.Sprintf("submission %s: precondition failed: state is %s, want %s",
		e.SubmissionID, e.Actual, e.Expected)
}

// IsPrecondition returns true if err is a stage precondition violation.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
