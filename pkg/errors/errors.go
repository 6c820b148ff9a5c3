package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeCallArgument ErrorCode = "CALL_ARGUMENT_ERROR"

	// Authentication errors
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeExpiredToken ErrorCode = "EXPIRED_TOKEN"

	// Not found errors
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeCallNotFound        ErrorCode = "CALL_NOT_FOUND"
	ErrCodeParticipantNotFound ErrorCode = "PARTICIPANT_NOT_FOUND"
	ErrCodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeCallConflict ErrorCode = "CALL_CONFLICT"

	// Data errors
	ErrCodeCallSettings ErrorCode = "CALL_SETTINGS_ERROR"
	ErrCodeInvalidCall  ErrorCode = "INVALID_CALL"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage        ErrorCode = "STORAGE_ERROR"
	ErrCodeIdentity       ErrorCode = "IDENTITY_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// ConflictReason tells a caller of a rejected call creation whether to join, wait or abort.
type ConflictReason string

const (
	ReasonAlreadyRunning ConflictReason = "already_running"
	ReasonAlreadyStarted ConflictReason = "already_started"
	ReasonAlreadyCreated ConflictReason = "already_created"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, so errors.Is(err, CallNotFoundError()) works on wrapped errors.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
// The status code defaults to 500 Internal Server Error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WrapWithStatus wraps an existing error with an AppError and specific status code
func WrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

// ArgumentError reports a malformed or oversized call argument, naming the field.
func ArgumentError(field, message string) *AppError {
	return NewWithStatus(ErrCodeCallArgument, fmt.Sprintf("Wrong %s: %s", field, message), http.StatusBadRequest).
		WithDetails(map[string]string{"field": field})
}

// Authentication errors
func UnauthorizedError(message string) *AppError {
	return NewWithStatus(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func InvalidTokenError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidToken, message, http.StatusUnauthorized)
}

func ExpiredTokenError() *AppError {
	return NewWithStatus(ErrCodeExpiredToken, "Token has expired", http.StatusUnauthorized)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func CallNotFoundError() *AppError {
	return NewWithStatus(ErrCodeCallNotFound, "Call not found", http.StatusNotFound)
}

func ParticipantNotFoundError() *AppError {
	return NewWithStatus(ErrCodeParticipantNotFound, "Participant not found", http.StatusNotFound)
}

func ProviderNotFoundError(providerType string) *AppError {
	return NewWithStatus(ErrCodeProviderNotFound, fmt.Sprintf("Provider not found: %s", providerType), http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

// CallConflictError reports a call id collision. The reason is kept in Details.
func CallConflictError(reason ConflictReason, err error) *AppError {
	msg := "Call already created"
	switch reason {
	case ReasonAlreadyRunning:
		msg = "Call already started and running"
	case ReasonAlreadyStarted:
		msg = "Call already started"
	}
	return WrapWithStatus(ErrCodeCallConflict, msg, http.StatusConflict, err).WithDetails(reason)
}

// Data errors
func CallSettingsError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeCallSettings, message, http.StatusInternalServerError, err)
}

func InvalidCallError(message string, err error) *AppError {
	return WrapWithStatus(ErrCodeInvalidCall, message, http.StatusInternalServerError, err)
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func StorageError(err error) *AppError {
	return WrapWithStatus(ErrCodeStorage, "Storage error", http.StatusInternalServerError, err)
}

func IdentityError(id string, err error) *AppError {
	return WrapWithStatus(ErrCodeIdentity, fmt.Sprintf("Cannot resolve identity: %s", id), http.StatusBadGateway, err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}

// HasCode reports whether any AppError in the chain carries the code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// ConflictReasonOf returns the reason of a call conflict found in the chain.
func ConflictReasonOf(err error) (ConflictReason, bool) {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return "", false
		}
		if appErr.Code == ErrCodeCallConflict {
			reason, ok := appErr.Details.(ConflictReason)
			return reason, ok
		}
		err = appErr.Err
	}
	return "", false
}
