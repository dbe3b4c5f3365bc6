package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrConfig is returned by Config.Validate.
var ErrConfig = errors.New("authapi: invalid config")

// Config controls HTTP transport behavior for the auth routes.
type Config struct {
	// TrustProxy enables X-Forwarded-For / X-Real-IP for client IPs.
	TrustProxy   bool
	MaxBodyBytes int64

	// DBWait bounds how long a request waits for the database connection.
	DBWait time.Duration

	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite
}

// DefaultConfig returns production defaults: secure strict cookies scoped to the
// auth prefix and a 1 MiB body cap.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:      1 << 20,
		DBWait:            5 * time.Second,
		RefreshCookieName: "refresh_token",
		CookiePath:        routePrefix,
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteStrictMode,
	}
}

// Validate reports configuration errors wrapped with ErrConfig.
func (c Config) Validate() error {
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max body bytes must be > 0", ErrConfig)
	}
	if c.DBWait <= 0 {
		return fmt.Errorf("%w: db wait must be > 0", ErrConfig)
	}
	if strings.TrimSpace(c.RefreshCookieName) == "" {
		return fmt.Errorf("%w: empty refresh cookie name", ErrConfig)
	}
	if !strings.HasPrefix(c.CookiePath, "/") {
		return fmt.Errorf("%w: cookie path must start with /", ErrConfig)
	}
	if c.CookieSameSite == http.SameSiteNoneMode && !c.CookieSecure {
		return fmt.Errorf("%w: SameSite=None requires Secure", ErrConfig)
	}
	return nil
}

// ParseSameSite maps "strict", "lax" or "none" to an http.SameSite value.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("%w: unknown SameSite %q", ErrConfig, s)
	}
}
