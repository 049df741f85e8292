package models

import "errors"

// Storage-level sentinel errors shared by every Store implementation.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
	// ErrPrecondition is returned when a conditional write matched no row.
	ErrPrecondition = errors.New("precondition failed")
)

// ErrorType classifies API errors for clients.
type ErrorType string

const (
	ValidationErrorType     ErrorType = "ValidationError"
	NotFoundErrorType       ErrorType = "NotFoundError"
	ConflictErrorType       ErrorType = "ConflictError"
	StateErrorType          ErrorType = "StateError"
	AuthenticationErrorType ErrorType = "AuthenticationError"
	AuthorizationErrorType  ErrorType = "AuthorizationError"
	DatabaseErrorType       ErrorType = "DatabaseError"
	GeneralErrorType        ErrorType = "GeneralError"
)

// APIErrorResponse is the error envelope returned by the HTTP API.
type APIErrorResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	ErrorType ErrorType         `json:"error_type"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// APIResponse is the success envelope returned by the HTTP API.
type APIResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}
