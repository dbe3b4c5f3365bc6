package api

import (
	"net/http"
	"strings"
	"time"
)

// refreshCookie builds the refresh cookie. An empty value with a zero expiry
// produces the deletion form (MaxAge -1, epoch Expires).
func (h *Handler) refreshCookie(value string, exp time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
	if value == "" {
		c.Expires = time.Unix(0, 0).UTC()
		c.MaxAge = -1
	}
	return c
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, secret string, exp time.Time) {
	http.SetCookie(w, h.refreshCookie(secret, exp))
}

// clearRefreshCookie runs on logout, expiry and reuse so a dead secret is not replayed.
func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, h.refreshCookie("", time.Time{}))
}

// refreshSecret returns the presented refresh secret. The cookie wins over the
// JSON body so browser clients cannot be steered by a forged body field.
func (h *Handler) refreshSecret(r *http.Request, fromBody string) (string, bool) {
	if c, err := r.Cookie(h.cfg.RefreshCookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, true
		}
	}
	v := strings.TrimSpace(fromBody)
	return v, v != ""
}
