package warehouse

import (
	"fmt"
	"strings"
)

// ConnectivityError wraps network or authentication failures.
type ConnectivityError struct {
	Cause error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("warehouse connectivity error: %v", e.Cause)
}

func (e *ConnectivityError) Unwrap() error { return e.Cause }

// IsRetryable marks connectivity failures as transient for the retry driver.
func (e *ConnectivityError) IsRetryable() bool { return true }

// PermissionError wraps catalog-not-readable failures.
type PermissionError struct {
	Cause error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("warehouse permission error: %v", e.Cause)
}

func (e *PermissionError) Unwrap() error { return e.Cause }

func (e *PermissionError) IsRetryable() bool { return false }

// UnsupportedError marks an operation unavailable on this dialect.
type UnsupportedError struct {
	Operation string
	Dialect   string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("operation %s not supported on dialect %s", e.Operation, e.Dialect)
}

func (e *UnsupportedError) IsRetryable() bool { return false }

// ClassifyError wraps a raw driver error into the adapter error taxonomy.
// Already-classified errors pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *ConnectivityError, *PermissionError, *UnsupportedError:
		return err
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "insufficient privilege"),
		strings.Contains(lower, "access denied"),
		strings.Contains(lower, "access is denied"):
		return &PermissionError{Cause: err}
	default:
		return &ConnectivityError{Cause: err}
	}
}
