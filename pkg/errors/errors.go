package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"
	ErrorTypeRemote     ErrorType = "REMOTE"
	ErrorTypeTransport  ErrorType = "TRANSPORT"
	ErrorTypeGeneration ErrorType = "GENERATION"
	ErrorTypeInternal   ErrorType = "INTERNAL"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewValidationCause creates a validation error that wraps a sentinel cause
func NewValidationCause(message string, cause error) error {
	return &AppError{Type: ErrorTypeValidation, Message: message, Err: cause}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewConflict creates a conflict error
func NewConflict(message string) error {
	return &AppError{Type: ErrorTypeConflict, Message: message}
}

// NewRemote creates an error for a failed call to a remote collaborator
func NewRemote(message string, err error) error {
	return &AppError{Type: ErrorTypeRemote, Message: message, Err: err}
}

// NewTransport creates a transport (connection) error
func NewTransport(message string, err error) error {
	return &AppError{Type: ErrorTypeTransport, Message: message, Err: err}
}

// NewGeneration creates an error for a failed diagram generation
func NewGeneration(message string) error {
	return &AppError{Type: ErrorTypeGeneration, Message: message}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// TypeOf returns the error type, or ErrorTypeInternal for foreign errors
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// Type checking functions

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsRemote checks if an error is a remote-operation error
func IsRemote(err error) bool {
	return hasType(err, ErrorTypeRemote)
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	return hasType(err, ErrorTypeTransport)
}

// IsGeneration checks if an error is a generation error
func IsGeneration(err error) bool {
	return hasType(err, ErrorTypeGeneration)
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

func hasType(err error, t ErrorType) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Type == t
}
