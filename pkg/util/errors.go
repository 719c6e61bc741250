package util

import (
	"errors"
	"fmt"
	"strings"

	"github.com/TheEntropyCollective/mediavault/pkg/common/vaulterr"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

func (e *ErrorWithSuggestion) Error() string {
	return fmt.Sprintf("%v\nSuggestion: %s", e.Err, e.Suggestion)
}

func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// WrapErrorWithSuggestion creates an error with a helpful suggestion
func WrapErrorWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}

// GetErrorSuggestion returns helpful suggestions based on common error patterns
func GetErrorSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var withSuggestion *ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		return withSuggestion.Suggestion
	}

	switch {
	case errors.Is(err, vaulterr.ErrAccessDenied):
		return "Run the command as an administrator with --admin, or as the resource's creator with --as"
	case errors.Is(err, vaulterr.ErrResourceNotFound):
		return "Check the resource ID. 'mediavault grants' lists grants per resource"
	case errors.Is(err, vaulterr.ErrAuthenticationFailure):
		return "The master key may be wrong, or stored content was modified"
	case errors.Is(err, vaulterr.ErrStorageUnavailable):
		return "Check that the metadata database and object store are reachable"
	}

	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no route to host") {
		return "Make sure the storage service is running and the endpoint in the configuration is correct"
	}

	if strings.Contains(errStr, "permission denied") {
		return "Check file permissions or try running with appropriate privileges"
	}

	if strings.Contains(errStr, "context deadline exceeded") {
		return "The operation took too long. Raise vault.store_timeout_seconds or check the storage services"
	}

	if strings.Contains(errStr, "failed to load configuration") || strings.Contains(errStr, "invalid configuration") {
		return "Check if the configuration file exists and is valid JSON. Use --config to specify a custom path"
	}

	return ""
}

// FormatError formats an error with suggestions for better user experience
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var withSuggestion *ErrorWithSuggestion
	if errors.As(err, &withSuggestion) {
		return "Error: " + err.Error()
	}

	if suggestion := GetErrorSuggestion(err); suggestion != "" {
		return fmt.Sprintf("Error: %v\nSuggestion: %s", err, suggestion)
	}

	return fmt.Sprintf("Error: %v", err)
}
