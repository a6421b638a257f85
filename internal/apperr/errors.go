// Package apperr defines the coded service errors shared by the domain packages.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound marks a missing or invisible record.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks a request that failed validation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict marks a write that collides with existing state.
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks an operation the acting user may not perform.
	ErrForbidden = errors.New("forbidden")
)

// ServiceError carries a stable "<package>.<operation>.<reason>" code.
type ServiceError struct {
	code   string
	reason string
	kind   error
	err    error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() []error {
	unwrapped := make([]error, 0, 2)
	if e.kind != nil {
		unwrapped = append(unwrapped, e.kind)
	}
	if e.err != nil {
		unwrapped = append(unwrapped, e.err)
	}
	return unwrapped
}

// Code returns the full error code.
func (e *ServiceError) Code() string {
	return e.code
}

// Reason returns the trailing reason segment of the code.
func (e *ServiceError) Reason() string {
	return e.reason
}

// New builds an internal failure for operation with the given reason.
func New(operation, reason string, cause error) error {
	return &ServiceError{code: operation + "." + reason, reason: reason, err: cause}
}

// NotFound builds an error matching ErrNotFound.
func NotFound(operation, reason string, cause error) error {
	return withKind(operation, reason, ErrNotFound, cause)
}

// Invalid builds an error matching ErrInvalidInput.
func Invalid(operation, reason string, cause error) error {
	return withKind(operation, reason, ErrInvalidInput, cause)
}

// Conflict builds an error matching ErrConflict.
func Conflict(operation, reason string, cause error) error {
	return withKind(operation, reason, ErrConflict, cause)
}

// Forbidden builds an error matching ErrForbidden.
func Forbidden(operation, reason string, cause error) error {
	return withKind(operation, reason, ErrForbidden, cause)
}

func withKind(operation, reason string, kind, cause error) error {
	return &ServiceError{code: operation + "." + reason, reason: reason, kind: kind, err: cause}
}

// CodeOf extracts the service code from err, or returns "" when err carries none.
func CodeOf(err error) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code()
	}
	return ""
}

// ReasonOf extracts the reason segment from err, or returns fallback.
func ReasonOf(err error, fallback string) string {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) && serviceErr.Reason() != "" {
		return serviceErr.Reason()
	}
	return fallback
}

// IsDuplicateKey reports whether err is a unique constraint violation from any supported driver.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "duplicate key") ||
		strings.Contains(message, "duplicated key")
}
