package password

import "errors"

// Policy errors carry user-facing text; the API returns it verbatim.
var (
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrWeakPassword     = errors.New("password is too common or predictable")
)

// ErrInvalidHash reports a stored hash that cannot be parsed or exceeds cost limits.
var ErrInvalidHash = errors.New("password: malformed argon2id hash")
