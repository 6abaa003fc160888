package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendersight/vaultops/internal/errors"
)

// TestUserErrorFormatting verifies UserError displays properly
func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
	assert.Contains(t, errMsg, "💡")
}

// TestUserErrorUnwrap verifies the wrapped cause stays reachable
func TestUserErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("read /tmp/x: permission denied")
	err := errors.UserError{
		Message: "Cannot read key artifact",
		Err:     cause,
	}

	assert.ErrorIs(t, err, cause)
}

// TestConfigErrorFormatting verifies ConfigError displays with context
func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.ConfigError{
		Field:      "store.address",
		Value:      "invalid-url",
		Message:    "Invalid URL format",
		Suggestion: "Use format: http://hostname:port",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "store.address")
	assert.Contains(t, errMsg, "invalid-url")
	assert.Contains(t, errMsg, "Invalid URL format")
	assert.Contains(t, errMsg, "http://hostname:port")
}

// TestCommandErrorFormatting verifies CommandError includes exit code
func TestCommandErrorFormatting(t *testing.T) {
	t.Parallel()

	err := errors.CommandError{
		Command:    "vault server -config=server.hcl",
		ExitCode:   1,
		Message:    "store process exited early",
		Suggestion: "Check the store's own log output",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "vault server -config=server.hcl")
	assert.Contains(t, errMsg, "exit code: 1")
	assert.Contains(t, errMsg, "store process exited early")
	assert.Contains(t, errMsg, "Check the store's own log output")
}

// TestStoreErrorSuggestions verifies failure classes map to distinct remedies
func TestStoreErrorSuggestions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        errors.StoreError
		wantPhrase string
	}{
		{
			name:       "unreachable store",
			err:        errors.StoreError{Operation: "seal-status", Err: fmt.Errorf("dial tcp 127.0.0.1:8200: connection refused")},
			wantPhrase: "unreachable",
		},
		{
			name:       "missing role",
			err:        errors.StoreError{Operation: "role-id", StatusCode: 404},
			wantPhrase: "provision",
		},
		{
			name:       "bad token",
			err:        errors.StoreError{Operation: "unseal", StatusCode: 403},
			wantPhrase: "token",
		},
		{
			name:       "sealed store",
			err:        errors.StoreError{Operation: "secret-id", StatusCode: 503},
			wantPhrase: "sealed",
		},
		{
			name:       "explicit suggestion wins",
			err:        errors.StoreError{Operation: "health", StatusCode: 404, Suggestion: "custom fix"},
			wantPhrase: "custom fix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Contains(t, tt.err.Error(), tt.wantPhrase)
			assert.Contains(t, tt.err.Error(), tt.err.Operation)
		})
	}
}

// TestIsNotFound verifies 404 detection through wrapping
func TestIsNotFound(t *testing.T) {
	t.Parallel()

	notFound := errors.StoreError{Operation: "role-id", StatusCode: 404}
	wrapped := fmt.Errorf("rotate svc-a: %w", notFound)

	assert.True(t, errors.IsNotFound(wrapped))
	assert.False(t, errors.IsNotFound(errors.StoreError{Operation: "unseal", StatusCode: 500}))
	assert.False(t, errors.IsNotFound(fmt.Errorf("plain error")))
	assert.False(t, errors.IsNotFound(nil))
}

// TestSimplifyError verifies technical errors become actionable ones
func TestSimplifyError(t *testing.T) {
	t.Parallel()

	t.Run("yaml error becomes config error", func(t *testing.T) {
		t.Parallel()
		err := errors.SimplifyError(fmt.Errorf("yaml: line 4: mapping values are not allowed"))
		var ce errors.ConfigError
		assert.ErrorAs(t, err, &ce)
	})

	t.Run("permission denied becomes user error", func(t *testing.T) {
		t.Parallel()
		err := errors.SimplifyError(fmt.Errorf("open /etc/x: permission denied"))
		var ue errors.UserError
		assert.ErrorAs(t, err, &ue)
		assert.Contains(t, err.Error(), "Permission denied")
	})

	t.Run("typed errors pass through unchanged", func(t *testing.T) {
		t.Parallel()
		orig := errors.StoreError{Operation: "health", StatusCode: 503}
		assert.Equal(t, error(orig), errors.SimplifyError(orig))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, errors.SimplifyError(nil))
	})
}
