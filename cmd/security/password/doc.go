// Package password hashes and verifies account passwords.
//
// Hashes are Argon2id in a PHC-like encoded string:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// Hash strings are treated as untrusted input during Verify; parameters far
// above the configured cost are rejected before any work is done.
//
// DummyVerifier gives lookups for unknown accounts the same cost profile as a
// real verification so login latency does not reveal whether an email exists.
package password
