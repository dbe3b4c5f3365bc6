package identity

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	fullNameMin = 2
	fullNameMax = 100
	emailMax    = 254
)

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s is a single bare address ("a@b.c"), without display name.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > emailMax {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	return addr.Address == s && addr.Name == ""
}

// NormalizeFullName trims s and reports whether it fits 2..100 characters.
func NormalizeFullName(s string) (string, bool) {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	return s, n >= fullNameMin && n <= fullNameMax
}
