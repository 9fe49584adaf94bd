package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeInvalidState     = "INVALID_STATE"
	CodeOAuthFailed      = "OAUTH_FAILED"

	// Validation errors
	CodeBadRequest   = "BAD_REQUEST"
	CodeMissingField = "MISSING_FIELD"

	// Scan errors
	CodeRetrievalFailed = "RETRIEVAL_FAILED"
	CodeScanInProgress  = "SCAN_IN_PROGRESS"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeConfigError   = "CONFIG_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth errors
func NotAuthenticated() *AppError {
	return &AppError{
		Code:    CodeNotAuthenticated,
		Message: "no authorized session; visit /auth first",
		Status:  http.StatusUnauthorized,
	}
}

func InvalidState(err error) *AppError {
	return &AppError{
		Code:    CodeInvalidState,
		Message: "oauth state is missing, expired or forged",
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func OAuthFailed(provider string, err error) *AppError {
	return &AppError{
		Code:    CodeOAuthFailed,
		Message: fmt.Sprintf("OAuth failed for %s", provider),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func MissingField(field string) *AppError {
	return &AppError{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Scan errors
func RetrievalFailed(stage string, err error) *AppError {
	return &AppError{
		Code:    CodeRetrievalFailed,
		Message: fmt.Sprintf("scan failed during %s", stage),
		Status:  http.StatusBadGateway,
		Details: map[string]any{"stage": stage},
		Err:     err,
	}
}

func ScanInProgress() *AppError {
	return &AppError{
		Code:    CodeScanInProgress,
		Message: "a scan is already running",
		Status:  http.StatusConflict,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func ConfigError(message string) *AppError {
	return &AppError{
		Code:    CodeConfigError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
