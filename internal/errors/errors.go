// Package errors defines the service error taxonomy shared by handlers,
// middleware and services.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode classifies a service error.
type ErrorCode string

const (
	CodeValidation   ErrorCode = "VALIDATION_ERROR"
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeConflict     ErrorCode = "CONFLICT"
	CodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is the canonical error type crossing service boundaries.
// Message is safe to return to callers; Err is internal and never serialized.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WithDetails attaches a detail key/value pair and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Validation reports malformed or missing input. No side effects occurred.
func Validation(message string) *ServiceError {
	return &ServiceError{Code: CodeValidation, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Unauthorized reports a failed credential check. The message is deliberately
// generic so callers cannot tell which factor failed.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "invalid credentials"
	}
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken reports a missing, malformed, expired or tampered session token.
func InvalidToken(err error) *ServiceError {
	return &ServiceError{Code: CodeInvalidToken, Message: "invalid session token", HTTPStatus: http.StatusUnauthorized, Err: err}
}

// NotFound reports an absent entity.
func NotFound(entity string) *ServiceError {
	return &ServiceError{Code: CodeNotFound, Message: entity + " not found", HTTPStatus: http.StatusNotFound}
}

// Conflict reports a uniqueness violation surfaced as a domain error.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// Internal wraps an infrastructure failure. The wrapped error is logged but
// never exposed to callers.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// IsCode reports whether err carries the given service error code.
func IsCode(err error, code ErrorCode) bool {
	svcErr := GetServiceError(err)
	return svcErr != nil && svcErr.Code == code
}
