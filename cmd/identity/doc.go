// Package identity is the credential store: user records keyed by normalized
// email plus their Argon2id password hashes.
//
// Password hashes never leave this package. Callers get User values for
// display and a boolean from VerifyPassword for login.
package identity
