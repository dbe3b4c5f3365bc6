// Package auth orchestrates registration, login, refresh, logout and profile
// operations over the credential store and the session engine.
//
// Login is throttled per email and per client IP by a fixed-window Limiter.
package auth
