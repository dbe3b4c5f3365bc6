package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestLogMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status     int
		wantLevel  slog.Level
		wantResult string
		wantClass  string
	}{
		{status: 200, wantLevel: slog.LevelInfo, wantResult: "success", wantClass: "2xx"},
		{status: 302, wantLevel: slog.LevelInfo, wantResult: "redirect", wantClass: "3xx"},
		{status: 404, wantLevel: slog.LevelWarn, wantResult: "client_error", wantClass: "4xx"},
		{status: 503, wantLevel: slog.LevelError, wantResult: "server_error", wantClass: "5xx"},
	}

	for _, tc := range cases {
		level, result := requestLogMeta(tc.status)
		if level != tc.wantLevel || result != tc.wantResult {
			t.Fatalf("status=%d level=%v result=%q; want level=%v result=%q", tc.status, level, result, tc.wantLevel, tc.wantResult)
		}
		if got := statusClass(tc.status); got != tc.wantClass {
			t.Fatalf("statusClass(%d)=%q want=%q", tc.status, got, tc.wantClass)
		}
	}
	if got := statusClass(42); got != "unknown" {
		t.Fatalf("statusClass(42)=%q", got)
	}
}

func TestWithRequestLogging(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{}}`))
	}), log, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	reqID := rr.Header().Get("X-Request-ID")
	if _, err := uuid.Parse(reqID); err != nil {
		t.Fatalf("expected generated uuid request id, got %q", reqID)
	}

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["level"] != "WARN" || rec["msg"] != "http.request" {
		t.Fatalf("unexpected level/msg: %v", rec)
	}
	if rec["status"] != float64(401) || rec["status_class"] != "4xx" || rec["request_id"] != reqID {
		t.Fatalf("unexpected fields: %v", rec)
	}
	if rec["bytes"] != float64(len(`{"error":{}}`)) {
		t.Fatalf("bytes = %v", rec["bytes"])
	}
}

func TestWithRequestLogging_KeepsIncomingRequestID(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), log, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "edge-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "edge-123" {
		t.Fatalf("request id = %q", got)
	}
}

func TestWithSecurityHeaders(t *testing.T) {
	h := WithSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("missing nosniff: %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("missing frame options: %q", got)
	}
	if got := rr.Header().Get("Referrer-Policy"); got != "no-referrer" {
		t.Fatalf("missing referrer policy: %q", got)
	}
	if got := rr.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Fatalf("missing CSP: %q", got)
	}
}

func TestWithRequestLogging_RouteMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := newHTTPMetrics(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := WithRequestLogging(mux, slog.New(slog.NewTextHandler(io.Discard, nil)), m)

	for _, path := range []string{"/api/v1/auth/me", "/api/v1/auth/me", "/nope"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET /api/v1/auth/me", "401")); got != 2 {
		t.Fatalf("me requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("unmatched", "404")); got != 1 {
		t.Fatalf("unmatched requests = %v, want 1", got)
	}
}

func TestStatusRecorder_FirstHeaderWins(t *testing.T) {
	t.Parallel()

	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _ = rec.Write([]byte("x"))
	rec.WriteHeader(http.StatusInternalServerError)

	if rec.status != http.StatusOK || rec.bytes != 1 {
		t.Fatalf("status=%d bytes=%d", rec.status, rec.bytes)
	}
}

func TestWithCORS(t *testing.T) {
	t.Parallel()

	var reached bool
	h := WithCORS(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}), []string{"http://localhost:5173/", " https://app.example.com "})

	t.Run("preflight from allowed origin", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/refresh-token", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent || reached {
			t.Fatalf("status=%d reached=%v", rr.Code, reached)
		}
		hdr := rr.Header()
		if hdr.Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
			t.Fatalf("ACAO = %q", hdr.Get("Access-Control-Allow-Origin"))
		}
		if hdr.Get("Access-Control-Allow-Credentials") != "true" {
			t.Fatalf("ACAC = %q", hdr.Get("Access-Control-Allow-Credentials"))
		}
		if hdr.Get("Access-Control-Allow-Headers") != "Content-Type, Authorization" {
			t.Fatalf("allow headers = %q", hdr.Get("Access-Control-Allow-Headers"))
		}
		if !strings.Contains(hdr.Get("Access-Control-Allow-Methods"), "POST") {
			t.Fatalf("allow methods = %q", hdr.Get("Access-Control-Allow-Methods"))
		}
	})

	t.Run("simple request from allowed origin", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if !reached || rr.Code != http.StatusOK {
			t.Fatalf("status=%d reached=%v", rr.Code, reached)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" ||
			rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Fatalf("missing CORS headers: %v", rr.Header())
		}
	})

	t.Run("foreign origin gets nothing", func(t *testing.T) {
		reached = false
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/refresh-token", nil)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if !reached {
			t.Fatalf("foreign preflight must fall through to the mux")
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "" || rr.Header().Get("Access-Control-Allow-Credentials") != "" {
			t.Fatalf("unexpected CORS headers: %v", rr.Header())
		}
		if rr.Header().Get("Vary") != "Origin" {
			t.Fatalf("Vary = %q", rr.Header().Get("Vary"))
		}
	})

	t.Run("no origin passes through untouched", func(t *testing.T) {
		reached = false
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if !reached || rr.Header().Get("Vary") != "" {
			t.Fatalf("reached=%v headers=%v", reached, rr.Header())
		}
	})
}
