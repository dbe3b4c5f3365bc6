package session

import "errors"

var (
	// ErrInvalid is returned when a refresh secret does not match any live session.
	ErrInvalid = errors.New("refresh token invalid")

	// ErrExpired is returned when the session behind a refresh secret has expired.
	// The session is deleted before this is returned.
	ErrExpired = errors.New("session expired")

	// ErrReuseDetected is returned when an already-rotated refresh secret is presented.
	// The whole lineage is deleted before this is returned.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrAccessTokenExpired is returned when a well-formed access token is past exp.
	ErrAccessTokenExpired = errors.New("access token expired")

	// ErrAccessTokenInvalid is returned for any other access-token verification failure.
	ErrAccessTokenInvalid = errors.New("access token invalid")

	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("session not found")

	// ErrDuplicate is returned by stores when an id or identifier is already taken.
	ErrDuplicate = errors.New("session already exists")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
