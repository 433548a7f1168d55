package llm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		errType   ErrorType
		retryable bool
	}{
		{"nil", nil, ErrorTypeNoneSentinel, false},
		{"unauthorized", errors.New("401 Unauthorized"), ErrorTypeAuth, false},
		{"invalid key", errors.New("invalid api key provided"), ErrorTypeAuth, false},
		{"rate limited", errors.New("429 Too Many Requests"), ErrorTypeRateLimit, true},
		{"model missing", errors.New("the model does not exist"), ErrorTypeModel, false},
		{"endpoint 404", errors.New("404 page not found"), ErrorTypeEndpoint, false},
		{"refused", errors.New("dial tcp: connection refused"), ErrorTypeEndpoint, true},
		{"timeout", errors.New("context deadline exceeded"), ErrorTypeTimeout, true},
		{"server", errors.New("502 Bad Gateway"), ErrorTypeServer, true},
		{"unknown", errors.New("something odd"), ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("expected nil, got %v", got)
				}
				return
			}
			if got.Type != tt.errType {
				t.Errorf("type = %s, want %s", got.Type, tt.errType)
			}
			if got.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", got.Retryable, tt.retryable)
			}
		})
	}
}

// ErrorTypeNoneSentinel only exists to make the nil table row readable.
const ErrorTypeNoneSentinel = ErrorType("")

func TestClassifyErrorPassthrough(t *testing.T) {
	original := NewError(ErrorTypeFormat, "bad json", false, nil)
	wrapped := fmt.Errorf("attempt 1: %w", original)
	if got := ClassifyError(wrapped); got != original {
		t.Error("already-classified errors must pass through")
	}
}

func TestErrorRetryAfterHint(t *testing.T) {
	err := NewError(ErrorTypeRateLimit, "rate limited", true, nil)
	err.RetryAfter = 3 * time.Second

	hint, ok := err.RetryAfterHint()
	if !ok || hint != 3*time.Second {
		t.Errorf("hint = %v ok=%v", hint, ok)
	}

	plain := NewError(ErrorTypeServer, "boom", true, nil)
	if _, ok := plain.RetryAfterHint(); ok {
		t.Error("no hint expected without RetryAfter")
	}
}

func TestErrorStringIncludesContext(t *testing.T) {
	err := NewError(ErrorTypeAuth, "authentication failed", false, errors.New("401"))
	err.StatusCode = 401
	msg := err.Error()
	for _, want := range []string{"auth", "HTTP 401", "authentication failed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error string %q missing %q", msg, want)
		}
	}
}
