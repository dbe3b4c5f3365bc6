package db

import "errors"

// ErrUnavailable is returned when the database cannot be reached within the
// caller's wait bound or the connection attempt failed.
var ErrUnavailable = errors.New("database unavailable")
