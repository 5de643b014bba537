// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidSymbol      = errors.New("invalid symbol")
	ErrInvalidThreshold   = errors.New("invalid threshold")
	ErrInvertedThresholds = errors.New("upper limit must be greater than lower limit")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrPersistence        = errors.New("persistence failed")
	ErrNoPrice            = errors.New("no price available")
)

// ValidationError represents a rejected input at the store boundary.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError. Symbol fields unwrap to
// ErrInvalidSymbol, everything else to ErrInvalidThreshold.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	sentinel := ErrInvalidThreshold
	if field == "symbol" {
		sentinel = ErrInvalidSymbol
	}
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     sentinel,
	}
}

// FetchReason classifies why a price could not be obtained.
type FetchReason string

const (
	FetchTransport FetchReason = "transport"
	FetchNotFound  FetchReason = "not_found"
	FetchBlocked   FetchReason = "blocked"
	FetchBadStatus FetchReason = "bad_status"
	FetchBadBody   FetchReason = "bad_body"
	FetchNoPrice   FetchReason = "no_price"
	FetchExhausted FetchReason = "exhausted"
	FetchCancelled FetchReason = "cancelled"
)

// Retryable reports whether another attempt may succeed. A well-formed body
// without a price is retried like any other unexpected response.
func (r FetchReason) Retryable() bool {
	switch r {
	case FetchTransport, FetchBlocked, FetchBadStatus, FetchNoPrice:
		return true
	default:
		return false
	}
}

// FetchError represents a failed quote request.
type FetchError struct {
	Symbol string
	Reason FetchReason
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch error [%s] %s", e.Reason, e.Symbol)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: HTTP %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNoPrice
}

// NewFetchError creates a new FetchError.
func NewFetchError(symbol string, reason FetchReason, status int, err error) *FetchError {
	return &FetchError{
		Symbol: symbol,
		Reason: reason,
		Status: status,
		Err:    err,
	}
}

// PersistenceError represents a failure to load or save the threshold file.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error [%s] %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is makes every PersistenceError match ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op, path string, err error) *PersistenceError {
	return &PersistenceError{
		Path: path,
		Op:   op,
		Err:  err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
