// Package errors carries the AppError taxonomy from the repository and service layers
// up to the HTTP transport, which maps each type to a status code.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ErrorTypeInvalidRequest      = "INVALID_REQUEST"
	ErrorTypeForbidden           = "FORBIDDEN"
	ErrorTypeConflict            = "CONFLICT"
	ErrorTypeDatabaseError       = "DATABASE_ERROR"
	ErrorTypeInternalServerError = "INTERNAL_SERVER_ERROR"
	ErrorTypeUnknown             = "UNKNOWN_ERROR"
)

// AppError is what every layer hands to the transport. Message is safe to show end
// users; Err is the cause and is only ever logged.
type AppError struct {
	Type    string
	Message string
	Err     error

	// Violations lists individual field problems on INVALID_REQUEST errors.
	Violations []string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(errType, message string, err error) *AppError {
	return &AppError{Type: errType, Message: message, Err: err}
}

func NewInvalidRequestError(message string, err error) *AppError {
	return NewAppError(ErrorTypeInvalidRequest, message, err)
}

// NewValidationError joins the violations, in order, into one message and keeps the list.
func NewValidationError(violations []string) *AppError {
	appErr := NewAppError(ErrorTypeInvalidRequest, "Validation failed: "+strings.Join(violations, " "), nil)
	appErr.Violations = violations
	return appErr
}

func NewForbiddenError(message string, err error) *AppError {
	return NewAppError(ErrorTypeForbidden, message, err)
}

func NewConflictError(message string, err error) *AppError {
	return NewAppError(ErrorTypeConflict, message, err)
}

func NewDatabaseError(message string, err error) *AppError {
	return NewAppError(ErrorTypeDatabaseError, message, err)
}

func NewInternalServerError(message string, err error) *AppError {
	return NewAppError(ErrorTypeInternalServerError, message, err)
}

func GetErrorType(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

func GetViolations(err error) []string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Violations
	}
	return nil
}
