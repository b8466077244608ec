package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a category of session error.
type ErrorCode string

const (
	// ErrCodeInvalidCredentials indicates the identifier/secret pair was rejected.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodeProviderUnavailable indicates the identity backend could not be reached or timed out.
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	// ErrCodeAlreadyExists indicates an account with the identifier already exists.
	ErrCodeAlreadyExists ErrorCode = "already_exists"
	// ErrCodeWeakSecret indicates the secret does not meet the minimum strength.
	ErrCodeWeakSecret ErrorCode = "weak_secret"
	// ErrCodeInvalidIdentifier indicates the identifier is not a valid email address.
	ErrCodeInvalidIdentifier ErrorCode = "invalid_identifier"
	// ErrCodeBootstrapClosed indicates a first-administrator bootstrap was attempted after one exists.
	ErrCodeBootstrapClosed ErrorCode = "bootstrap_closed"
	// ErrCodeNotFound indicates a stored record (e.g. a persisted credential) was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeUnknown is the catch-all for any other failure.
	ErrCodeUnknown ErrorCode = "unknown"
)

// displayMessages holds the user-facing message for each code.
var displayMessages = map[ErrorCode]string{
	ErrCodeInvalidCredentials:  "Invalid email or password.",
	ErrCodeProviderUnavailable: "The sign-in service is unavailable. Please try again.",
	ErrCodeAlreadyExists:       "An account with this email already exists.",
	ErrCodeWeakSecret:          "Password must be at least 6 characters.",
	ErrCodeInvalidIdentifier:   "Enter a valid email address.",
	ErrCodeBootstrapClosed:     "An administrator already exists. Sign in instead.",
	ErrCodeNotFound:            "Not found.",
	ErrCodeUnknown:             "Something went wrong. Please try again.",
}

// DisplayMessage returns the user-facing message for a code.
func DisplayMessage(code ErrorCode) string {
	if msg, ok := displayMessages[code]; ok {
		return msg
	}
	return displayMessages[ErrCodeUnknown]
}

// AppError represents a structured error with a code, display message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a display-ready message
	Message string
	// Op names the operation that failed (e.g. "sign in", "create account")
	Op string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific input field that caused the error (optional)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newCode(code ErrorCode, cause error) *AppError {
	return &AppError{Code: code, Message: DisplayMessage(code), Cause: cause}
}

// InvalidCredentials creates a new InvalidCredentials error.
func InvalidCredentials(cause error) *AppError { return newCode(ErrCodeInvalidCredentials, cause) }

// ProviderUnavailable creates a new ProviderUnavailable error.
func ProviderUnavailable(cause error) *AppError { return newCode(ErrCodeProviderUnavailable, cause) }

// AlreadyExists creates a new AlreadyExists error.
func AlreadyExists(cause error) *AppError { return newCode(ErrCodeAlreadyExists, cause) }

// WeakSecret creates a new WeakSecret error for the secret field.
func WeakSecret(cause error) *AppError {
	e := newCode(ErrCodeWeakSecret, cause)
	e.Field = "secret"
	return e
}

// InvalidIdentifier creates a new InvalidIdentifier error for the identifier field.
func InvalidIdentifier(cause error) *AppError {
	e := newCode(ErrCodeInvalidIdentifier, cause)
	e.Field = "identifier"
	return e
}

// BootstrapClosed creates a new BootstrapClosed error.
func BootstrapClosed(cause error) *AppError { return newCode(ErrCodeBootstrapClosed, cause) }

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: message,
	}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return NotFound(fmt.Sprintf(format, args...))
}

// Unknown creates a new Unknown error.
func Unknown(cause error) *AppError { return newCode(ErrCodeUnknown, cause) }

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Classify normalizes any error returned by an identity backend into an *AppError tagged with op.
// Context deadline/cancel errors become ProviderUnavailable; unrecognized errors become Unknown.
// The returned value is always a fresh *AppError so callers may set Op without mutating shared errors.
func Classify(op string, err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		out := *appErr
		if out.Message == "" {
			out.Message = DisplayMessage(out.Code)
		}
		if out.Op == "" {
			out.Op = op
		}
		return &out
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		out := ProviderUnavailable(err)
		out.Op = op
		return out
	default:
		out := Unknown(err)
		out.Op = op
		return out
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsInvalidCredentials checks if an error is an InvalidCredentials error.
func IsInvalidCredentials(err error) bool {
	return isCode(err, ErrCodeInvalidCredentials)
}

// IsProviderUnavailable checks if an error is a ProviderUnavailable error.
func IsProviderUnavailable(err error) bool {
	return isCode(err, ErrCodeProviderUnavailable)
}

// IsAlreadyExists checks if an error is an AlreadyExists error.
func IsAlreadyExists(err error) bool {
	return isCode(err, ErrCodeAlreadyExists)
}

// IsWeakSecret checks if an error is a WeakSecret error.
func IsWeakSecret(err error) bool {
	return isCode(err, ErrCodeWeakSecret)
}

// IsInvalidIdentifier checks if an error is an InvalidIdentifier error.
func IsInvalidIdentifier(err error) bool {
	return isCode(err, ErrCodeInvalidIdentifier)
}

// IsBootstrapClosed checks if an error is a BootstrapClosed error.
func IsBootstrapClosed(err error) bool {
	return isCode(err, ErrCodeBootstrapClosed)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetOp returns the Op from an error, or empty string if not an AppError.
func GetOp(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Op
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
