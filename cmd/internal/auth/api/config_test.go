package api

import (
	"errors"
	"net/http"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "zero body", mutate: func(c *Config) { c.MaxBodyBytes = 0 }},
		{name: "zero wait", mutate: func(c *Config) { c.DBWait = 0 }},
		{name: "no cookie name", mutate: func(c *Config) { c.RefreshCookieName = "" }},
		{name: "relative path", mutate: func(c *Config) { c.CookiePath = "api" }},
		{name: "none without secure", mutate: func(c *Config) {
			c.CookieSameSite = http.SameSiteNoneMode
			c.CookieSecure = false
		}},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(&cfg)
		err := cfg.Validate()
		if tt.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrConfig) {
			t.Fatalf("%s: expected ErrConfig, got %v", tt.name, err)
		}
	}
}

func TestParseSameSite(t *testing.T) {
	tests := map[string]http.SameSite{
		"":       http.SameSiteStrictMode,
		"Strict": http.SameSiteStrictMode,
		"lax":    http.SameSiteLaxMode,
		"NONE":   http.SameSiteNoneMode,
	}
	for in, want := range tests {
		got, err := ParseSameSite(in)
		if err != nil || got != want {
			t.Fatalf("ParseSameSite(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseSameSite("sometimes"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
