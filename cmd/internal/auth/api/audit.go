package api

import (
	"log/slog"
	"net/http"
	"strings"
)

// audit writes a security event for an auth route. Secrets never reach it.
func (h *Handler) audit(r *http.Request, action string, attrs ...slog.Attr) {
	if h == nil || h.log == nil {
		return
	}
	base := []slog.Attr{
		slog.String("ip", clientIP(r, h.cfg.TrustProxy)),
		slog.String("user_agent", truncate(strings.TrimSpace(r.UserAgent()), 256)),
	}
	h.log.LogAttrs(r.Context(), slog.LevelInfo, action, append(base, attrs...)...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
