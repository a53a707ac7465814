package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common error cases
var (
	// ErrMalformedKey indicates a public key line could not be parsed
	ErrMalformedKey = errors.New("malformed public key")

	// ErrNoUsername indicates no username was supplied and the key carries no comment
	ErrNoUsername = errors.New("no username available")

	// ErrInvalidUsername indicates the username contains unsafe characters
	ErrInvalidUsername = errors.New("invalid username")

	// ErrPathTraversal indicates a repository name tried to escape the account home
	ErrPathTraversal = errors.New("path traversal rejected")

	// ErrBadCommand indicates the SSH command line could not be understood
	ErrBadCommand = errors.New("bad command")

	// ErrCorruptRevision indicates the pushed revision could not be read back
	ErrCorruptRevision = errors.New("corrupt revision")

	// ErrReceiverUnavailable indicates the receiver program could not be started
	ErrReceiverUnavailable = errors.New("receiver unavailable")

	// ErrReceiverRejected indicates the receiver exited non-zero under strict policy
	ErrReceiverRejected = errors.New("receiver rejected push")

	// ErrConfigError indicates a configuration error
	ErrConfigError = errors.New("configuration error")
)

// ExitCode represents the process exit code attached to an error.
// The binary runs under sshd and git, so exit codes are the only
// machine-readable failure channel.
type ExitCode int

const (
	// CodeOK means success
	CodeOK ExitCode = 0

	// CodeFatal covers I/O failures, corrupt revisions and failed handoffs
	CodeFatal ExitCode = 1

	// CodeUsage covers parse and validation failures
	CodeUsage ExitCode = 2
)

// AppError represents an application-level error with an exit code
type AppError struct {
	Code    ExitCode
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for comparison against sentinel errors
func (e *AppError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// NewAppError creates a new AppError with the given code, message, and underlying error
func NewAppError(code ExitCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Usage creates a usage/validation error (exit code 2)
func Usage(message string, err error) *AppError {
	return NewAppError(CodeUsage, message, err)
}

// Fatal creates a fatal operation error (exit code 1)
func Fatal(message string, err error) *AppError {
	return NewAppError(CodeFatal, message, err)
}

// IOError creates a fatal error for a failed filesystem operation
func IOError(operation string, err error) *AppError {
	return NewAppError(CodeFatal, fmt.Sprintf("%s failed", operation), err)
}

// GitError creates a fatal error for a failed git operation
func GitError(operation string, err error) *AppError {
	return NewAppError(CodeFatal, fmt.Sprintf("git %s failed", operation), err)
}

// CodeOf returns the exit code carried by err, defaulting to CodeFatal
// for plain errors and CodeOK for nil.
func CodeOf(err error) ExitCode {
	if err == nil {
		return CodeOK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeFatal
}

// IsUsage checks if an error is a usage/validation error
func IsUsage(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeUsage
	}
	return errors.Is(err, ErrMalformedKey) || errors.Is(err, ErrNoUsername) ||
		errors.Is(err, ErrBadCommand) || errors.Is(err, ErrPathTraversal)
}

// IsRecoverable reports whether a push may still be accepted despite err.
// Only a missing or non-starting receiver is recoverable; everything else
// gates the session.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrReceiverUnavailable)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
