package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
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

// Is reports whether target is an AppError carrying the same code, so callers
// can write errors.Is(err, apperror.ErrInsufficientFunds()).
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Error codes.
const (
	CodeNotFound           = "ACC_001"
	CodeAlreadyBanned      = "ACC_002"
	CodeConflict           = "ACC_003"
	CodeInvalidCredentials = "AUTH_001"
	CodeAccountBanned      = "AUTH_002"
	CodeTokenInvalid       = "AUTH_003"
	CodeForbidden          = "AUTH_004"
	CodeInvalidAmount      = "BAL_001"
	CodeInvalidCurrency    = "BAL_002"
	CodeInsufficientFunds  = "BAL_003"
	CodeValidation         = "REQ_001"
	CodeRateLimited        = "RATE_001"
	CodeUnavailable        = "SYS_001"
	CodeInternal           = "SYS_002"
)

// ---- Accounts (ACC) ----

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrAlreadyBanned() *AppError {
	return New(CodeAlreadyBanned, "Account is already banned", http.StatusConflict)
}

func ErrConflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New(CodeInvalidCredentials, "Invalid credentials", http.StatusUnauthorized)
}

func ErrAccountBanned() *AppError {
	return New(CodeAccountBanned, "Account is banned", http.StatusForbidden)
}

func ErrTokenInvalid() *AppError {
	return New(CodeTokenInvalid, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New(CodeForbidden, "Insufficient privileges", http.StatusForbidden)
}

// ---- Balances (BAL) ----

func ErrInvalidAmount() *AppError {
	return New(CodeInvalidAmount, "Amount must be a positive decimal", http.StatusBadRequest)
}

func ErrInvalidCurrency(currency string) *AppError {
	return New(CodeInvalidCurrency, fmt.Sprintf("Unsupported currency %q", currency), http.StatusBadRequest)
}

func ErrInsufficientFunds() *AppError {
	return New(CodeInsufficientFunds, "Insufficient funds", http.StatusUnprocessableEntity)
}

// ---- Requests (REQ) ----

// Validation returns a request validation error.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// Unavailable wraps a persistence or cache failure.
func Unavailable(err error) *AppError {
	return Wrap(CodeUnavailable, "Storage unavailable", http.StatusServiceUnavailable, err)
}

// InternalError wraps an unexpected internal error.
func InternalError(err error) *AppError {
	return Wrap(CodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
