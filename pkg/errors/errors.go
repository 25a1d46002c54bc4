package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers
// and compared by code across process boundaries.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is reports whether target is an AppError carrying the same code. Copies made by
// WithInternal therefore still match their sentinel.
func (e *AppError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*AppError)
	if !ok || t == nil {
		return false
	}
	return t.Code == e.Code
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError with a replaced message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// HTTP-facing errors.
var (
	ErrUnauthorized = &AppError{
		Code:       "UNAUTHORIZED",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrConflict = &AppError{
		Code:       "CONFLICT",
		Message:    "Resource was modified concurrently",
		StatusCode: http.StatusConflict,
	}

	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "Invalid request",
		StatusCode: http.StatusBadRequest,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// Offline sync errors.
var (
	// ErrStorageUnavailable means no persistent backend exists; callers degrade to memory-only.
	ErrStorageUnavailable = &AppError{
		Code:       "STORAGE_UNAVAILABLE",
		Message:    "Persistent storage is unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}

	// ErrQuotaExceeded means a cache write did not fit even after eviction and one retry.
	ErrQuotaExceeded = &AppError{
		Code:       "QUOTA_EXCEEDED",
		Message:    "Offline storage quota exceeded",
		StatusCode: http.StatusInsufficientStorage,
	}

	// ErrSyncConflict marks a local mutation based on an older server state.
	ErrSyncConflict = &AppError{
		Code:       "SYNC_CONFLICT",
		Message:    "Local change conflicts with newer server state",
		StatusCode: http.StatusConflict,
	}

	// ErrRemoteApplicationFailed is recorded on queue entries whose replay failed.
	ErrRemoteApplicationFailed = &AppError{
		Code:       "REMOTE_APPLICATION_FAILED",
		Message:    "Remote application of queued change failed",
		StatusCode: http.StatusBadGateway,
	}

	// ErrMaxRetriesExceeded marks queue entries that stopped retrying automatically.
	ErrMaxRetriesExceeded = &AppError{
		Code:       "MAX_RETRIES_EXCEEDED",
		Message:    "Queued change exceeded its retry limit",
		StatusCode: http.StatusUnprocessableEntity,
	}

	// ErrRemoteUnavailable means the household server could not be reached.
	ErrRemoteUnavailable = &AppError{
		Code:       "REMOTE_UNAVAILABLE",
		Message:    "Household server is unreachable",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// FromStatus rebuilds an AppError received over HTTP. Known codes map back onto
// their sentinel so errors.Is keeps working on the client side.
func FromStatus(statusCode int, code, message string) *AppError {
	for _, known := range []*AppError{ErrNotFound, ErrConflict, ErrBadRequest, ErrUnauthorized, ErrForbidden} {
		if code == known.Code || (code == "" && statusCode == known.StatusCode) {
			if message == "" {
				return known
			}
			return known.WithMessage(message)
		}
	}

	if code == "" {
		code = http.StatusText(statusCode)
	}
	if message == "" {
		message = fmt.Sprintf("remote returned status %d", statusCode)
	}
	return New(code, message, statusCode)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrBadRequest.Code,
		Message:    message,
		StatusCode: ErrBadRequest.StatusCode,
	}
}

// IsNotFound reports whether err carries the NOT_FOUND code.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err carries the CONFLICT code.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
