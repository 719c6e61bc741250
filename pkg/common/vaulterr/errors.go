// Package vaulterr defines the error taxonomy shared by every MediaVault layer.
//
// Lower layers wrap these sentinels with fmt.Errorf("...: %w", ...) and never
// swallow them. Callers test for them with errors.Is. Only the vault facade is
// allowed to translate one class into another (for example a storage outage
// during authorization becomes ErrAccessDenied, so fail-closed looks the same
// as a real denial from outside).
package vaulterr

import "errors"

// Cryptographic errors.
var (
	// ErrCryptoFailure indicates the underlying primitive failed. Not expected
	// under correct inputs.
	ErrCryptoFailure = errors.New("cryptographic primitive failure")

	// ErrAuthenticationFailure indicates the AEAD integrity tag did not verify:
	// tampered ciphertext, wrong key or corrupted metadata. Terminal.
	ErrAuthenticationFailure = errors.New("content failed integrity verification")
)

// Authorization errors.
var (
	// ErrAccessDenied indicates the caller lacks the requested capability. Terminal.
	ErrAccessDenied = errors.New("access denied")
)

// Storage errors.
var (
	// ErrObjectNotFound indicates a ciphertext object referenced by a record is
	// missing from the object store. This is a data-integrity error.
	ErrObjectNotFound = errors.New("encrypted object not found")

	// ErrStorageUnavailable indicates a transient infrastructure failure or a
	// timeout. Safe to retry with backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Lookup and validation errors.
var (
	// ErrResourceNotFound indicates the protected resource does not exist.
	ErrResourceNotFound = errors.New("protected resource not found")

	// ErrRecordNotFound indicates the encrypted object record does not exist.
	ErrRecordNotFound = errors.New("object record not found")

	// ErrGrantNotFound indicates no access grant exists for a (user, resource) pair.
	ErrGrantNotFound = errors.New("access grant not found")

	// ErrInvalidInput indicates a malformed request.
	ErrInvalidInput = errors.New("invalid input")
)

// IsRetryable reports whether err is a transient failure worth retrying.
// AccessDenied and AuthenticationFailure are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAccessDenied) || errors.Is(err, ErrAuthenticationFailure) {
		return false
	}
	return errors.Is(err, ErrStorageUnavailable)
}

// IsNotFound reports whether err is any of the lookup misses.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrGrantNotFound)
}
