package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden access")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict") // e.g. already registered
	ErrInternalServer     = errors.New("internal server error")
	ErrValidation         = errors.New("validation failed")
	ErrServiceUnavailable = errors.New("service unavailable") // challenge backend or OTP provider unreachable
	ErrProvider           = errors.New("verification provider error")
	ErrUpstream           = errors.New("upstream request failed")
	ErrLocked             = errors.New("problem is locked")
	ErrBusy               = errors.New("operation already in progress")
	ErrSessionEnded       = errors.New("session has ended")
	ErrInvalidState       = errors.New("invalid session state")
	ErrRateLimited        = errors.New("too many requests")
)

// DisplayError carries a message that is safe to show to the user next to
// the error kind used for status mapping.
type DisplayError struct {
	Kind    error
	Message string
	Err     error
}

func (e *DisplayError) Error() string {
	return e.Message
}

func (e *DisplayError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Display returns a user-facing error of the given kind.
func Display(kind error, message string) error {
	return &DisplayError{Kind: kind, Message: message}
}

// DisplayWrap is Display with an underlying cause kept for logging and errors.Is.
func DisplayWrap(kind error, message string, cause error) error {
	return &DisplayError{Kind: kind, Message: message, Err: cause}
}

// ErrorMessage returns the first user-facing message in err's chain, or
// err.Error() when none was attached.
func ErrorMessage(err error) string {
	var de *DisplayError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrBusy) || errors.Is(err, ErrInvalidState) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrLocked) {
		return http.StatusLocked
	}
	if errors.Is(err, ErrSessionEnded) {
		return http.StatusGone
	}
	if errors.Is(err, ErrRateLimited) {
		return http.StatusTooManyRequests
	}
	if errors.Is(err, ErrProvider) || errors.Is(err, ErrUpstream) {
		return http.StatusBadGateway
	}
	if errors.Is(err, ErrServiceUnavailable) {
		return http.StatusServiceUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // Unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
