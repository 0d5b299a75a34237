// Package errors provides unified error handling for the access layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code. These values are the exact "code"
// field emitted in the canonical error envelope.
type ErrorCode string

const (
	AuthenticationError     ErrorCode = "AUTHENTICATION_ERROR"
	AuthorizationError      ErrorCode = "AUTHORIZATION_ERROR"
	ValidationError         ErrorCode = "VALIDATION_ERROR"
	RateLimitError          ErrorCode = "RATE_LIMIT_ERROR"
	ExternalServiceError    ErrorCode = "EXTERNAL_SERVICE_ERROR"
	JWKSUnavailableError    ErrorCode = "JWKS_UNAVAILABLE"
	ConnectionLimitError    ErrorCode = "CONNECTION_LIMIT_EXCEEDED"
	UnknownTopicError       ErrorCode = "UNKNOWN_TOPIC"
	InternalError           ErrorCode = "INTERNAL_ERROR"

	// Extensions beyond the core taxonomy, used by the entitlement rule store
	// and task workflow CRUD surfaces.
	NotFoundError      ErrorCode = "NOT_FOUND"
	AlreadyExistsError ErrorCode = "ALREADY_EXISTS"
	ConflictError      ErrorCode = "CONFLICT"
)

// ServiceError represents a structured error with code, message, and HTTP status.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional details to the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new ServiceError.
func New(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with a ServiceError.
func Wrap(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Authentication errors

func Unauthorized(message string) *ServiceError {
	return New(AuthenticationError, message, http.StatusUnauthorized)
}

func InvalidToken(err error) *ServiceError {
	return Wrap(AuthenticationError, "invalid authentication token", http.StatusUnauthorized, err)
}

func TokenExpired() *ServiceError {
	return New(AuthenticationError, "authentication token has expired", http.StatusUnauthorized)
}

func InvalidSignature(err error) *ServiceError {
	return Wrap(AuthenticationError, "invalid token signature", http.StatusUnauthorized, err)
}

func JWKSUnavailable(err error) *ServiceError {
	return Wrap(JWKSUnavailableError, "JWKS endpoint unavailable and no cached key set", http.StatusServiceUnavailable, err)
}

// Authorization errors

func Forbidden(message string) *ServiceError {
	return New(AuthorizationError, message, http.StatusForbidden)
}

func EntitlementDenied(reason string) *ServiceError {
	return New(AuthorizationError, "entitlement check denied the request", http.StatusForbidden).
		WithDetails("reason", reason)
}

// Validation errors

func InvalidInput(field, reason string) *ServiceError {
	return New(ValidationError, "invalid input", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

func MissingParameter(param string) *ServiceError {
	return New(ValidationError, "missing required parameter", http.StatusBadRequest).
		WithDetails("parameter", param)
}

func InvalidFormat(field, expected string) *ServiceError {
	return New(ValidationError, "invalid format", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("expected", expected)
}

func OutOfRange(field string, minValue, maxValue interface{}) *ServiceError {
	return New(ValidationError, "value out of range", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("min", minValue).
		WithDetails("max", maxValue)
}

func UnknownTopic(topic string) *ServiceError {
	return New(UnknownTopicError, "unknown streaming topic", http.StatusBadRequest).
		WithDetails("topic", topic)
}

// Resource errors

func NotFound(resource, id string) *ServiceError {
	return New(NotFoundError, "resource not found", http.StatusNotFound).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func AlreadyExists(resource, id string) *ServiceError {
	return New(AlreadyExistsError, "resource already exists", http.StatusConflict).
		WithDetails("resource", resource).
		WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return New(ConflictError, message, http.StatusConflict)
}

// Service / downstream errors

func Internal(message string, err error) *ServiceError {
	return Wrap(InternalError, message, http.StatusInternalServerError, err)
}

func DatabaseError(operation string, err error) *ServiceError {
	return Wrap(InternalError, "database operation failed", http.StatusInternalServerError, err).
		WithDetails("operation", operation)
}

func ExternalAPIError(service string, err error) *ServiceError {
	return Wrap(ExternalServiceError, "downstream service call failed", http.StatusBadGateway, err).
		WithDetails("service", service)
}

func ServiceUnavailable(service string, err error) *ServiceError {
	return Wrap(ExternalServiceError, "downstream service unavailable", http.StatusServiceUnavailable, err).
		WithDetails("service", service)
}

func Timeout(operation string) *ServiceError {
	return New(ExternalServiceError, "operation timed out", http.StatusGatewayTimeout).
		WithDetails("operation", operation)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return New(RateLimitError, "rate limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func ConnectionLimitExceeded(limit int) *ServiceError {
	return New(ConnectionLimitError, "connection limit exceeded", http.StatusTooManyRequests).
		WithDetails("limit", limit)
}

// Helper functions

// IsServiceError checks if an error is a ServiceError.
func IsServiceError(err error) bool {
	var serviceErr *ServiceError
	return errors.As(err, &serviceErr)
}

// GetServiceError extracts a ServiceError from an error chain.
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return nil
}

// GetHTTPStatus returns the HTTP status code for an error.
func GetHTTPStatus(err error) int {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
