package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")
	ErrDepartmentLocked = errors.New("department locked")
	ErrInternalError    = errors.New("internal error")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeInternal   ErrorType = "internal"
)

// StoreError is a structured error for profile store operations
type StoreError struct {
	Type      ErrorType
	Op        string // Operation that failed (e.g., "get_profile", "set_department")
	TenantID  string // Tenant the operation was acting on, if known
	Err       error  // Underlying error
	Timestamp time.Time
	Retryable bool
}

func (e *StoreError) Error() string {
	if e.TenantID != "" {
		return fmt.Sprintf("%s failed for tenant %s: %v", e.Op, e.TenantID, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *StoreError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound:
		return e.Type == ErrorTypeNotFound
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	case ErrDepartmentLocked:
		return e.Type == ErrorTypeConflict
	}

	return errors.Is(e.Err, target)
}

// NewStoreError creates a new StoreError
func NewStoreError(errorType ErrorType, op, tenantID string, err error) *StoreError {
	return &StoreError{
		Type:      errorType,
		Op:        op,
		TenantID:  tenantID,
		Err:       err,
		Timestamp: time.Now(),
		Retryable: isRetryable(errorType),
	}
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeConnection, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// WrapNotFound wraps a missing-record error with operation context
func WrapNotFound(op, tenantID string) error {
	return NewStoreError(ErrorTypeNotFound, op, tenantID, ErrNotFound)
}

// WrapConflict wraps a write-conflict error with operation context
func WrapConflict(op, tenantID string, err error) error {
	return NewStoreError(ErrorTypeConflict, op, tenantID, err)
}

// WrapConnectionError wraps a connection error with context
func WrapConnectionError(op, tenantID string, err error) error {
	return NewStoreError(ErrorTypeConnection, op, tenantID, err)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}
