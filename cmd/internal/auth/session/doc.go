// Package session implements refresh-token sessions with single-use rotation.
//
// Each login creates one lineage record. The record holds the current refresh
// secret and the one it replaced, both as a bcrypt hash plus an HMAC lookup
// identifier. Presenting the current secret rotates the record in place;
// presenting the replaced secret is treated as theft and deletes the lineage.
//
// Access tokens are short-lived HS256 JWTs. Refresh secrets are opaque random
// strings that are never stored in plaintext.
//
// Three stores are provided: Postgres, Redis and in-memory.
package session
