package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CommandError represents a command execution error
type CommandError struct {
	Command    string
	ExitCode   int
	Message    string
	Suggestion string
}

func (e CommandError) Error() string {
	msg := fmt.Sprintf("Command '%s' failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit code: %d)", e.ExitCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// StoreError represents a failed call against the secret store API. The
// operation name and status code pin down which remedial action applies:
// unreachable, unauthorized, and missing-path failures each read differently.
type StoreError struct {
	Operation  string
	StatusCode int
	Message    string
	Suggestion string
	Err        error
}

func (e StoreError) Error() string {
	msg := fmt.Sprintf("Secret store call '%s' failed", e.Operation)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	suggestion := e.Suggestion
	if suggestion == "" {
		suggestion = storeSuggestion(e.StatusCode, e.Err)
	}
	if suggestion != "" {
		msg += "\n  💡 " + suggestion
	}

	return msg
}

func (e StoreError) Unwrap() error {
	return e.Err
}

// Hint returns the effective suggestion, deriving one from the status code
// or transport error when none was set explicitly.
func (e StoreError) Hint() string {
	if e.Suggestion != "" {
		return e.Suggestion
	}
	return storeSuggestion(e.StatusCode, e.Err)
}

// storeSuggestion maps common store failure classes to remedial actions
func storeSuggestion(statusCode int, err error) string {
	switch statusCode {
	case 400:
		return "The store rejected the request body. Check key material and role configuration"
	case 403:
		return "The store token lacks permission. Check VAULT_TOKEN or the configured token file"
	case 404:
		return "The path or role does not exist on the store. Run 'vaultops provision' to create missing roles"
	case 503:
		return "The store is sealed or standing by. Run 'vaultops unseal' first"
	}

	if err == nil {
		return ""
	}
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "The store is unreachable. Check the configured address and that the server process is running"
	}
	if strings.Contains(errStr, "timeout") {
		return "The store did not answer in time. Check network connectivity and store load"
	}

	return ""
}

// IsNotFound reports whether err is a StoreError for a missing path or role
func IsNotFound(err error) bool {
	var se StoreError
	if errors.As(err, &se) {
		return se.StatusCode == 404
	}
	return false
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}
	if _, ok := err.(CommandError); ok {
		return err
	}
	if _, ok := err.(StoreError); ok {
		return err
	}

	// Simplify common technical errors
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run as the owning account",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
