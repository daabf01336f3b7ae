package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session client
var (
	// Session errors
	ErrNoSession        = errors.New("no session")
	ErrSessionNotActive = errors.New("session is not active")
	ErrSessionChanged   = errors.New("session changed while request was in flight")
	ErrIncompleteTokens = errors.New("access token and refresh token must both be present")
	ErrEmptyProfile     = errors.New("empty user profile")

	// Transport errors
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrEmptyBaseURL     = errors.New("empty base URL")

	// Token errors
	ErrNotJWT = errors.New("token is not a JWT")

	// General errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInternal        = errors.New("internal error")

	// Storage errors
	ErrEmptyKey = errors.New("storage key is required")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
