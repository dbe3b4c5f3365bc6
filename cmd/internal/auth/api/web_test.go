package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRefreshSecret_PrefersCookie(t *testing.T) {
	h := &Handler{cfg: DefaultConfig()}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "from-cookie"})
	if got, ok := h.refreshSecret(req, "from-body"); !ok || got != "from-cookie" {
		t.Fatalf("refreshSecret = %q, %v", got, ok)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh-token", nil)
	if got, ok := h.refreshSecret(req, "  from-body "); !ok || got != "from-body" {
		t.Fatalf("refreshSecret = %q, %v", got, ok)
	}
	if _, ok := h.refreshSecret(req, " "); ok {
		t.Fatalf("expected no secret")
	}
}

func TestSetAndClearRefreshCookie(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CookieDomain = "example.com"
	h := &Handler{cfg: cfg}

	rr := httptest.NewRecorder()
	exp := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	h.setRefreshCookie(rr, "tok-123", exp)
	h.clearRefreshCookie(rr)

	cookies := rr.Result().Cookies()
	if len(cookies) != 2 {
		t.Fatalf("expected 2 cookies, got %d", len(cookies))
	}
	set, cleared := cookies[0], cookies[1]
	if set.Value != "tok-123" || !set.HttpOnly || !set.Secure || set.Path != "/api/v1/auth" || set.Domain != "example.com" {
		t.Fatalf("unexpected cookie: %+v", set)
	}
	if !set.Expires.Equal(exp) {
		t.Fatalf("expires = %v, want %v", set.Expires, exp)
	}
	if cleared.Value != "" || cleared.MaxAge != -1 {
		t.Fatalf("cookie not cleared: %+v", cleared)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := bearerToken(req); got != tt.want {
			t.Fatalf("bearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	req.Header.Set("X-Forwarded-For", "bogus, 203.0.113.9, 10.0.0.1")
	req.Header.Set("X-Real-IP", "203.0.113.10")

	if got := clientIP(req, false); got != "198.51.100.7" {
		t.Fatalf("untrusted clientIP = %q", got)
	}
	if got := clientIP(req, true); got != "203.0.113.9" {
		t.Fatalf("trusted clientIP = %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := clientIP(req, true); got != "203.0.113.10" {
		t.Fatalf("x-real-ip clientIP = %q", got)
	}

	req.RemoteAddr = "not-an-addr"
	if got := clientIP(req, false); got != "" {
		t.Fatalf("expected empty ip, got %q", got)
	}
}
