package errors

import (
	"errors"
	"fmt"
)

// Common error types for the findcourse client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNoSession          = errors.New("no active session")

	// Token errors
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrMissingAccessToken  = errors.New("response missing access token")
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// Transport and response errors
	ErrTransport = errors.New("transport failure")
	ErrDecode    = errors.New("malformed response")
	ErrServer    = errors.New("server error")

	// Validation errors
	ErrValidation = errors.New("validation failed")

	// Storage errors
	ErrStorage = errors.New("storage failure")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
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
