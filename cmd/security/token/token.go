package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrHMACKeyMissing is returned for a blank identifier key.
	ErrHMACKeyMissing = errors.New("token: identifier key is empty")
	// ErrHMACKeyTooShort is returned for a key under the required length.
	ErrHMACKeyTooShort = errors.New("token: identifier key too short")
)

// MinKeyBytes is the smallest identifier key accepted by NewDeriver.
const MinKeyBytes = 32

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// KeyFromString trims raw and enforces a minimum byte length.
// Blank input -> ErrHMACKeyMissing. Too short -> ErrHMACKeyTooShort.
func KeyFromString(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Deriver maps refresh secrets to stable lookup identifiers.
// It is safe for concurrent use.
type Deriver struct {
	key []byte
}

// NewDeriver builds a Deriver from a raw key string (at least MinKeyBytes bytes).
func NewDeriver(rawKey string) (*Deriver, error) {
	key, err := KeyFromString(rawKey, MinKeyBytes)
	if err != nil {
		return nil, err
	}
	return &Deriver{key: key}, nil
}

// Derive returns HMAC-SHA256(secret, key) as 64 hex chars.
// The same secret always yields the same identifier.
func (d *Deriver) Derive(secret string) string {
	return HashHMACSHA256Hex(secret, d.key)
}

// EqualHex64 compares two expected 64-char hex strings in constant time.
// Either side having the wrong length is a mismatch.
func EqualHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
