package token

import (
	"errors"
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewDeriver_KeyPolicy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		key  string
		want error
	}{
		{name: "missing", key: "", want: ErrHMACKeyMissing},
		{name: "blank", key: "   ", want: ErrHMACKeyMissing},
		{name: "short", key: "too-short", want: ErrHMACKeyTooShort},
		{name: "ok", key: testKey, want: nil},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewDeriver(tc.key)
			if !errors.Is(err, tc.want) {
				t.Fatalf("NewDeriver(%q) err=%v want=%v", tc.key, err, tc.want)
			}
		})
	}
}

func TestDeriver_DeterministicAndKeyed(t *testing.T) {
	t.Parallel()

	d1, err := NewDeriver(testKey)
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	d2, err := NewDeriver(strings.Repeat("k", 40))
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}

	a := d1.Derive("secret-a")
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a != d1.Derive("secret-a") {
		t.Fatalf("expected deterministic output")
	}
	if a == d1.Derive("secret-b") {
		t.Fatalf("expected different secrets to differ")
	}
	if a == d2.Derive("secret-a") {
		t.Fatalf("expected different keys to differ")
	}
}

func TestEqualHex64(t *testing.T) {
	t.Parallel()

	d, err := NewDeriver(testKey)
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	a := d.Derive("x")
	b := d.Derive("y")

	if !EqualHex64(a, a) {
		t.Fatalf("expected equal")
	}
	if EqualHex64(a, b) {
		t.Fatalf("expected mismatch")
	}
	if EqualHex64(a, a[:63]) {
		t.Fatalf("expected length mismatch to fail")
	}
}
