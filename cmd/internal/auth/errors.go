package auth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmailInUse is returned when registering an email that already exists.
	ErrEmailInUse = errors.New("email already in use")

	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	// Both cases return this same value.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound is returned when the user behind a valid token no longer exists.
	ErrNotFound = errors.New("user not found")

	// ErrInvalidInput is returned for request validation failures.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited is returned when login attempts exceed the configured window.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitError carries retry metadata for login throttling.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e RateLimitError) Error() string {
	if e.RetryAfter <= 0 {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
}

func (e RateLimitError) Unwrap() error { return ErrRateLimited }

// InputError is a validation failure with a client-safe message.
type InputError struct {
	Msg string
}

func (e InputError) Error() string { return e.Msg }

func (e InputError) Unwrap() error { return ErrInvalidInput }
