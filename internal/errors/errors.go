package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an application error for logging and transport
// mapping.
type ErrorType string

const (
	ErrTypeLicense    ErrorType = "LICENSE"
	ErrTypeTeam       ErrorType = "TEAM"
	ErrTypeAllocation ErrorType = "ALLOCATION"
	ErrTypeStorage    ErrorType = "STORAGE"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypePermission ErrorType = "PERMISSION"
	ErrTypeTransport  ErrorType = "TRANSPORT"
	ErrTypeConfig     ErrorType = "CONFIG"
)

// AppError represents an application-specific error with a classified
// type, an optional cause and free-form context.
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewLicenseError creates a license-related error
func NewLicenseError(message string, cause error) *AppError {
	return NewAppError(ErrTypeLicense, message, cause)
}

// NewTeamError creates a team-related error
func NewTeamError(message string, cause error) *AppError {
	return NewAppError(ErrTypeTeam, message, cause)
}

// NewAllocationError creates an allocation-related error
func NewAllocationError(message string, cause error) *AppError {
	return NewAppError(ErrTypeAllocation, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrTypeNotFound, fmt.Sprintf("%s not found", resource), nil)
}

// NewPermissionError creates a permission error
func NewPermissionError(message string) *AppError {
	return NewAppError(ErrTypePermission, message, nil)
}

// NewTransportError wraps a persistence or network failure. Transport
// errors are the only kind a caller may retry automatically.
func NewTransportError(message string, cause error) *AppError {
	return NewAppError(ErrTypeTransport, message, errors.Join(ErrTransportFailure, cause))
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// TypeOf returns the classified type of err, or "" when err carries none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}
