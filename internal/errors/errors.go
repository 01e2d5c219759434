// Package errors provides custom error types and error handling utilities.
// Following Go idioms, errors are values that carry context about what went wrong.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for the application.
// These can be checked with errors.Is() for specific error handling.
var (
	// ErrNotFound indicates a download or record was not found.
	ErrNotFound = errors.New("download not found")

	// ErrReleased indicates the manager has been released and no longer
	// accepts calls.
	ErrReleased = errors.New("manager released")

	// ErrInvalidStopReason indicates a stop call carried the reserved
	// "none" reason.
	ErrInvalidStopReason = errors.New("invalid stop reason")

	// ErrInvalidRequest indicates a malformed download request.
	ErrInvalidRequest = errors.New("invalid download request")

	// ErrInvalidURI indicates an invalid or malformed content URI.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrDownloadFailed indicates a fetch operation failed permanently.
	ErrDownloadFailed = errors.New("download failed")

	// ErrCancelled indicates an operation was cancelled.
	ErrCancelled = errors.New("operation cancelled")

	// ErrAlreadyRunning indicates another daemon instance holds the
	// data-directory lock.
	ErrAlreadyRunning = errors.New("another instance is already running")

	// ErrUnreachable indicates the control API of a running daemon could
	// not be reached.
	ErrUnreachable = errors.New("daemon not reachable")
)

// AppError is a structured error type that carries additional context.
type AppError struct {
	Op      string // Operation that failed (e.g., "index.Put")
	Err     error  // Underlying error
	Message string // Human-friendly message
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is and errors.As to work with wrapped errors.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given operation and error.
func New(op string, err error) *AppError {
	return &AppError{Op: op, Err: err}
}

// NewWithMessage creates a new AppError with a human-friendly message.
func NewWithMessage(op string, err error, message string) *AppError {
	return &AppError{Op: op, Err: err, Message: message}
}

// Wrap wraps an existing error with operation context.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{Op: op, Err: err}
}

// IsNotFound checks if an error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsReleased checks if an error came from a released manager.
func IsReleased(err error) bool {
	return errors.Is(err, ErrReleased)
}

// IsCancelled checks if an error is a cancellation error.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
