package identity

import (
	"strings"
	"testing"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "Alice@Example.COM", want: "alice@example.com"},
		{in: "  bob@example.com  ", want: "bob@example.com"},
		{in: "", want: ""},
	}
	for _, tc := range cases {
		if got := NormalizeEmail(tc.in); got != tc.want {
			t.Fatalf("NormalizeEmail(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{in: "alice@example.com", want: true},
		{in: " alice@example.com ", want: true},
		{in: "Alice <alice@example.com>", want: false},
		{in: "not-an-email", want: false},
		{in: "", want: false},
		{in: strings.Repeat("a", 250) + "@x.io", want: false},
	}
	for _, tc := range cases {
		if got := ValidEmail(tc.in); got != tc.want {
			t.Fatalf("ValidEmail(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeFullName(t *testing.T) {
	t.Parallel()

	if _, ok := NormalizeFullName(" A "); ok {
		t.Fatalf("expected single character name to be rejected")
	}
	if got, ok := NormalizeFullName("  Ada Lovelace "); !ok || got != "Ada Lovelace" {
		t.Fatalf("unexpected result: %q ok=%v", got, ok)
	}
	if _, ok := NormalizeFullName(strings.Repeat("é", 101)); ok {
		t.Fatalf("expected 101 runes to be rejected")
	}
	if _, ok := NormalizeFullName(strings.Repeat("é", 100)); !ok {
		t.Fatalf("expected 100 runes to pass")
	}
}
