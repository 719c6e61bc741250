package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorClassifier helps categorize and understand storage errors
type ErrorClassifier struct {
	backendType string
}

// NewErrorClassifier creates a new error classifier for a backend type
func NewErrorClassifier(backendType string) *ErrorClassifier {
	return &ErrorClassifier{backendType: backendType}
}

// ClassifyError analyzes an error and returns a standardized StorageError
func (ec *ErrorClassifier) ClassifyError(err error, operation string, key string) *StorageError {
	if err == nil {
		return nil
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return storageErr
	}

	code, summary := ErrCodeUnknown, err.Error()
	switch {
	case isTimeoutError(err):
		code, summary = ErrCodeTimeout, "operation timed out"
	case isNotFoundError(err):
		code, summary = ErrCodeNotFound, "object not found"
	case isAuthError(err):
		code, summary = ErrCodeUnauthorized, "authentication failed"
	case isConnectionError(err):
		code, summary = ErrCodeConnectionFailed, "connection failed"
	}

	return &StorageError{
		Code:        code,
		Message:     fmt.Sprintf("%s: %s", operation, summary),
		BackendType: ec.backendType,
		Key:         key,
		Cause:       err,
		Metadata:    map[string]interface{}{"operation": operation},
	}
}

// Error detection helpers
func isNotFoundError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "no such") ||
		strings.Contains(errStr, "does not exist") ||
		strings.Contains(errStr, "file does not exist") ||
		strings.Contains(errStr, "404")
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "dial") ||
		strings.Contains(errStr, "connect") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "unreachable")
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline")
}

func isAuthError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalidaccesskeyid") ||
		strings.Contains(errStr, "signaturedoesnotmatch") ||
		strings.Contains(errStr, "403")
}
