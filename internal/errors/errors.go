// Package errors provides error classification and handling for runcommand.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
)

// ErrorType represents the classification of errors
type ErrorType int

const (
	// ValidationErrorType represents invalid commands, address lists or configuration
	ValidationErrorType ErrorType = iota

	// ConnectionErrorType represents network or SSH transport errors
	ConnectionErrorType

	// AuthenticationErrorType represents SSH authentication failures
	AuthenticationErrorType

	// TimeoutErrorType represents connect or command timeouts
	TimeoutErrorType

	// ExecutionErrorType represents failures while talking to the device shell
	ExecutionErrorType

	// OutputErrorType represents failures writing the transcript file
	OutputErrorType

	// UnknownErrorType represents unclassified errors
	UnknownErrorType
)

// String returns a string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ValidationErrorType:
		return "validation"
	case ConnectionErrorType:
		return "connection"
	case AuthenticationErrorType:
		return "authentication"
	case TimeoutErrorType:
		return "timeout"
	case ExecutionErrorType:
		return "execution"
	case OutputErrorType:
		return "output"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with classification information
type ClassifiedError struct {
	Type     ErrorType
	Original error
	Message  string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	switch {
	case ce.Message != "" && ce.Original != nil:
		return ce.Message + ": " + ce.Original.Error()
	case ce.Message != "":
		return ce.Message
	case ce.Original != nil:
		return ce.Original.Error()
	}
	return "unknown error"
}

// Unwrap returns the original error for error unwrapping
func (ce *ClassifiedError) Unwrap() error {
	return ce.Original
}

// IsFatal reports whether the error aborts a --fail-fast run. Only
// authentication and timeout failures qualify.
func (ce *ClassifiedError) IsFatal() bool {
	return ce.Type == AuthenticationErrorType || ce.Type == TimeoutErrorType
}

// ClassifyError analyzes an error and returns its classification.
// Errors that are already classified keep their type.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{Type: TimeoutErrorType, Original: err}
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return &ClassifiedError{Type: TimeoutErrorType, Original: err}
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case isAuthenticationError(errStr):
		return &ClassifiedError{Type: AuthenticationErrorType, Original: err}
	case isTimeoutError(errStr):
		return &ClassifiedError{Type: TimeoutErrorType, Original: err}
	case isConnectionError(errStr):
		return &ClassifiedError{Type: ConnectionErrorType, Original: err}
	case isValidationError(errStr):
		return &ClassifiedError{Type: ValidationErrorType, Original: err}
	}

	return &ClassifiedError{Type: UnknownErrorType, Original: err}
}

// TypeOf is shorthand for ClassifyError(err).Type.
func TypeOf(err error) ErrorType {
	if ce := ClassifyError(err); ce != nil {
		return ce.Type
	}
	return UnknownErrorType
}

func isAuthenticationError(errStr string) bool {
	authKeywords := []string{
		"unable to authenticate",
		"authentication failed",
		"auth fail",
		"no supported methods remain",
		"permission denied",
		"access denied",
		"login incorrect",
	}
	return containsAny(errStr, authKeywords)
}

func isTimeoutError(errStr string) bool {
	timeoutKeywords := []string{
		"timeout",
		"timed out",
		"deadline exceeded",
	}
	return containsAny(errStr, timeoutKeywords)
}

func isConnectionError(errStr string) bool {
	connectionKeywords := []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"network is unreachable",
		"no route to host",
		"host is unreachable",
		"broken pipe",
		"handshake failed",
		"unexpected eof",
		"eof",
	}
	return containsAny(errStr, connectionKeywords)
}

func isValidationError(errStr string) bool {
	validationKeywords := []string{
		"invalid",
		"malformed",
		"no such file",
		"not found",
	}
	return containsAny(errStr, validationKeywords)
}

func containsAny(s string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

// NewValidationError creates a new validation error
func NewValidationError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: ValidationErrorType, Original: original, Message: message}
}

// NewConnectionError creates a new connection error
func NewConnectionError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: ConnectionErrorType, Original: original, Message: message}
}

// NewAuthenticationError creates a new authentication error
func NewAuthenticationError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: AuthenticationErrorType, Original: original, Message: message}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: TimeoutErrorType, Original: original, Message: message}
}

// NewExecutionError creates a new execution error
func NewExecutionError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: ExecutionErrorType, Original: original, Message: message}
}

// NewOutputError creates a new output error
func NewOutputError(message string, original error) *ClassifiedError {
	return &ClassifiedError{Type: OutputErrorType, Original: original, Message: message}
}

// ErrorCollector collects and categorizes multiple errors. It is safe for
// concurrent use.
type ErrorCollector struct {
	mu     sync.Mutex
	errors map[ErrorType][]error
	count  int
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make(map[ErrorType][]error),
	}
}

// Add adds an error to the collector
func (ec *ErrorCollector) Add(err error) {
	if err == nil {
		return
	}

	classified := ClassifyError(err)

	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.errors[classified.Type] = append(ec.errors[classified.Type], err)
	ec.count++
}

// Count returns the total number of errors
func (ec *ErrorCollector) Count() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.count
}

// CountByType returns the number of errors of a specific type
func (ec *ErrorCollector) CountByType(errorType ErrorType) int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.errors[errorType])
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	return ec.Count() > 0
}

// Summary returns a summary of all collected errors
func (ec *ErrorCollector) Summary() string {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.count == 0 {
		return "no errors"
	}

	types := make([]int, 0, len(ec.errors))
	for errorType := range ec.errors {
		types = append(types, int(errorType))
	}
	sort.Ints(types)

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%d %s", len(ec.errors[ErrorType(t)]), ErrorType(t)))
	}

	return fmt.Sprintf("total: %d errors (%s)", ec.count, strings.Join(parts, ", "))
}
