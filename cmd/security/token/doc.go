// Package token provides the keyed derivations used to index refresh secrets.
//
// A refresh secret is never stored. The session store keeps two things per
// generation: an adaptive hash used as proof of possession, and a deterministic
// HMAC-SHA256 identifier used purely as a lookup key. This package owns the
// second one.
//
// Output is always 64-char lowercase hex so identifiers can be compared in
// constant time and stored in fixed-width columns.
package token
