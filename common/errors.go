// Package common provides shared constants, types, and utilities
// used across the VPN Registry application.
package common

import "errors"

// Sentinel errors for registry operations.
// These can be checked with errors.Is() for proper error handling.
var (
	ErrTimeout   = errors.New("operation timed out")
	ErrCancelled = errors.New("operation cancelled")
	ErrClosed    = errors.New("registry closed")

	// Profile errors.
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidProfile  = errors.New("invalid profile data")
	ErrAmbiguousName   = errors.New("profile name matches more than one profile")
	ErrProfileExcluded = errors.New("profile excluded by inclusion policy")

	// Store errors.
	ErrStoreUnavailable = errors.New("profile store unavailable")
	ErrNoRemoteStore    = errors.New("no remote store configured")

	// Credential errors.
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrCredentialStorage   = errors.New("failed to store credentials")
	ErrEncryption          = errors.New("encryption error")
	ErrDecryption          = errors.New("decryption error")

	// Configuration errors.
	ErrConfigLoad    = errors.New("failed to load configuration")
	ErrConfigSave    = errors.New("failed to save configuration")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
