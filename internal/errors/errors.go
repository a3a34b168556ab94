package errors

import (
	"errors"
	"fmt"
)

// Common error types for the dashboard session host
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")

	// Session errors
	ErrSessionExpired  = errors.New("session expired")
	ErrNoRefreshToken  = errors.New("no refresh token")
	ErrRefreshFailed   = errors.New("refresh failed")
	ErrInvalidToken    = errors.New("invalid token")
	ErrTokenRevoked    = errors.New("token revoked")
	ErrInvalidCurrency = errors.New("invalid currency")

	// Popup errors
	ErrPopupBlocked      = errors.New("popup blocked")
	ErrAttemptSuperseded = errors.New("login attempt superseded")
	ErrWindowNotFound    = errors.New("window not found")
	ErrUnknownProvider   = errors.New("unknown provider")

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
