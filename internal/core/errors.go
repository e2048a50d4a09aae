package core

import (
	"errors"
	"fmt"
	"strings"
)

// CredentialError reports malformed or missing connection parameters.
// It is returned before any connect attempt is made.
type CredentialError struct {
	Field  string
	Reason string
}

func (e *CredentialError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid credentials: %s", e.Reason)
	}
	return fmt.Sprintf("invalid credentials: %s: %s", e.Field, e.Reason)
}

// ConnCategory classifies connection failures.
type ConnCategory string

const (
	ConnAuth            ConnCategory = "auth"
	ConnNetwork         ConnCategory = "network"
	ConnLimitExceeded   ConnCategory = "limit_exceeded"
	ConnUnsupportedKind ConnCategory = "unsupported_kind"
)

// ConnectionError wraps a connect failure with its category. Message is
// already scrubbed of secrets when the error is constructed.
type ConnectionError struct {
	Category ConnCategory
	Message  string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("connection error (%s): %s", e.Category, e.Message)
	}
	return fmt.Sprintf("connection error (%s): %v", e.Category, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ValidationRejection is not a system fault: it is a deliberate security
// decision, logged and returned with the matched rule name. The raw query
// text is never echoed back.
type ValidationRejection struct {
	Rule   string
	Reason string
}

func (e *ValidationRejection) Error() string {
	return fmt.Sprintf("query rejected (%s): %s", e.Rule, e.Reason)
}

// ExecCategory classifies execution failures.
type ExecCategory string

const (
	ExecNotFound    ExecCategory = "not_found"
	ExecDriverError ExecCategory = "driver_error"
	ExecTimeout     ExecCategory = "timeout"
)

// ExecutionError wraps a query execution failure.
type ExecutionError struct {
	Category ExecCategory
	Message  string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("execution error (%s): %s", e.Category, e.Message)
	}
	return fmt.Sprintf("execution error (%s): %v", e.Category, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ErrNotFound is the sentinel for unknown connection ids.
var ErrNotFound = errors.New("connection not found")

// Scrub removes every occurrence of the given secrets from a message
// before it crosses the trust boundary. Driver errors routinely embed the
// DSN, so this runs on every error path that saw credentials.
func Scrub(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, s, "[redacted]")
	}
	return msg
}

// ScrubError wraps err with its message scrubbed of the given secrets.
func ScrubError(err error, secrets ...string) error {
	if err == nil {
		return nil
	}
	return errors.New(Scrub(err.Error(), secrets...))
}
