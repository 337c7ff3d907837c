package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for the client core
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeTransport      ErrorType = "TRANSPORT_ERROR"
	ErrorTypeNormalization  ErrorType = "NORMALIZATION_ERROR"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypeAuthorization  ErrorType = "AUTHORIZATION_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"
)

// Error codes. Each failure kind the core reports has its own code so callers
// can tell them apart without string matching.
const (
	CodeUnauthenticated      = "unauthenticated"
	CodeRatingOutOfRange     = "rating-out-of-range"
	CodeCommentTooShort      = "comment-too-short"
	CodeInvalidRequest       = "invalid-request"
	CodeSubscriptionDegraded = "subscription-degraded"
	CodeListenFailed         = "listen-failed"
	CodeWriteFailed          = "write-failed"
	CodeMalformedDocument    = "malformed-document"
	CodeInvalidCredentials   = "invalid-credentials"
	CodeProfileNotFound      = "profile-not-found"
	CodeEmailTaken           = "email-taken"
	CodePermissionDenied     = "permission-denied"
	CodeSubmissionInFlight   = "submission-in-flight"
	CodeInvalidTransition    = "invalid-transition"
	CodeUnsupportedQuery     = "unsupported-query"
)

// Sentinels for errors.Is. Returned errors are fresh AppError values carrying
// details; they match these through AppError.Is (type + code).
var (
	ErrUnauthenticated      = NewValidationError("user is not authenticated").WithCode(CodeUnauthenticated)
	ErrRatingOutOfRange     = NewValidationError("rating must be between 1 and 5").WithCode(CodeRatingOutOfRange)
	ErrCommentTooShort      = NewValidationError("comment must have at least 10 characters").WithCode(CodeCommentTooShort)
	ErrInvalidRequest       = NewValidationError("invalid request").WithCode(CodeInvalidRequest)
	ErrSubscriptionDegraded = NewTransportError("subscription degraded").WithCode(CodeSubscriptionDegraded)
	ErrListenFailed         = NewTransportError("failed to open subscription").WithCode(CodeListenFailed)
	ErrWriteFailed          = NewTransportError("write failed").WithCode(CodeWriteFailed)
	ErrMalformedDocument    = NewNormalizationError("malformed document").WithCode(CodeMalformedDocument)
	ErrInvalidCredentials   = NewAuthenticationError("invalid credentials").WithCode(CodeInvalidCredentials)
	ErrProfileNotFound      = NewAuthenticationError("profile not found").WithCode(CodeProfileNotFound)
	ErrEmailTaken           = NewAuthenticationError("email is already taken").WithCode(CodeEmailTaken)
	ErrPermissionDenied     = NewAuthorizationError("permission denied").WithCode(CodePermissionDenied)
	ErrSubmissionInFlight   = NewConflictError("a submission is already in flight").WithCode(CodeSubmissionInFlight)
	ErrInvalidTransition    = NewConflictError("invalid state transition").WithCode(CodeInvalidTransition)
	ErrUnsupportedQuery     = NewValidationError("query is not supported by this store").WithCode(CodeUnsupportedQuery)
)

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError of the same type and code.
// A target without a code matches on type alone.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	if t.Code == "" {
		return e.Type == t.Type
	}
	return e.Type == t.Type && e.Code == t.Code
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New returns a fresh copy of a sentinel so callers can attach details
// without mutating the shared value.
func (e *AppError) New() *AppError {
	return &AppError{
		Type:      e.Type,
		Message:   e.Message,
		Code:      e.Code,
		HTTPCode:  e.HTTPCode,
		Details:   make(map[string]interface{}),
		Component: e.Component,
	}
}

// Common error constructors

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewTransportError creates an error for a failed exchange with the remote store.
func NewTransportError(message string) *AppError {
	return NewAppError(ErrorTypeTransport, message, http.StatusBadGateway)
}

// NewNormalizationError creates an error for a document that cannot be normalized.
func NewNormalizationError(message string) *AppError {
	return NewAppError(ErrorTypeNormalization, message, http.StatusUnprocessableEntity)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, message, http.StatusUnauthorized)
}

// NewAuthorizationError creates an authorization error
func NewAuthorizationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthorization, message, http.StatusForbidden)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, http.StatusConflict)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// ValidationError represents validation errors for multiple fields
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve.Errors[0].Message)
}

// NewValidationErrors creates a new validation errors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make([]ValidationError, 0),
	}
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) *ValidationErrors {
	ve.Errors = append(ve.Errors, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
	return ve
}

// HasErrors returns true if there are validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError converts validation errors to an AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	if !ve.HasErrors() {
		return nil
	}

	appErr := ErrInvalidRequest.New()
	appErr.Message = ve.Error()
	appErr.Details["validation_errors"] = ve.Errors
	return appErr
}

// Helper functions for common error scenarios

// WrapError wraps an error with context
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// TypeOf returns the AppError type found in err's chain, or "" if none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// CodeOf returns the AppError code found in err's chain, or "" if none.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// HTTPStatus returns the HTTP status carried by err, defaulting to 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// IsTransport checks if an error is a transport error
func IsTransport(err error) bool {
	return TypeOf(err) == ErrorTypeTransport
}

// IsNormalization checks if an error is a normalization error
func IsNormalization(err error) bool {
	return TypeOf(err) == ErrorTypeNormalization
}

// IsAuthentication checks if an error is an authentication error
func IsAuthentication(err error) bool {
	return TypeOf(err) == ErrorTypeAuthentication
}

// IsAuthorization checks if an error is an authorization error
func IsAuthorization(err error) bool {
	return TypeOf(err) == ErrorTypeAuthorization
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return TypeOf(err) == ErrorTypeConflict
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}
