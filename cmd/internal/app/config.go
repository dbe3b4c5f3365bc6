package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sessiond/cmd/internal/auth"
	"sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/internal/db"

	"github.com/spf13/viper"
)

// Session storage backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// ErrConfig wraps every configuration error that must halt startup.
var ErrConfig = errors.New("config")

// Config contains all runtime configuration. Every key is read from the
// environment with the SESSIOND_ prefix, e.g. SESSIOND_HTTP_ADDR.
type Config struct {
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	ReadHeaderTimeout time.Duration `mapstructure:"HTTP_READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `mapstructure:"HTTP_READ_TIMEOUT"`
	WriteTimeout      time.Duration `mapstructure:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `mapstructure:"HTTP_IDLE_TIMEOUT"`
	MaxHeaderBytes    int           `mapstructure:"HTTP_MAX_HEADER_BYTES"`
	ShutdownTimeout   time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`

	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	DBConnectTimeout time.Duration `mapstructure:"DB_CONNECT_TIMEOUT"`
	DBWait           time.Duration `mapstructure:"DB_WAIT"`
	MigrateOnStart   bool          `mapstructure:"MIGRATE_ON_START"`

	SessionBackend string `mapstructure:"SESSION_BACKEND"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	RedisPrefix    string `mapstructure:"REDIS_PREFIX"`

	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	TokenHMACKey    string        `mapstructure:"TOKEN_HMAC_KEY"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	RefreshHashCost int           `mapstructure:"REFRESH_HASH_COST"`
	SweepInterval   time.Duration `mapstructure:"SWEEP_INTERVAL"`

	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	CookieDomain   string `mapstructure:"COOKIE_DOMAIN"`
	CookieSameSite string `mapstructure:"COOKIE_SAMESITE"`
	TrustProxy     bool   `mapstructure:"TRUST_PROXY"`
	MaxBodyBytes   int64  `mapstructure:"MAX_BODY_BYTES"`
	CORSOrigins    string `mapstructure:"CORS_ORIGINS"`
	ClientURL      string `mapstructure:"CLIENT_URL"`

	LoginRateMax    int           `mapstructure:"LOGIN_RATE_MAX"`
	LoginRateIPMax  int           `mapstructure:"LOGIN_RATE_IP_MAX"`
	LoginRateWindow time.Duration `mapstructure:"LOGIN_RATE_WINDOW"`
}

// LoadConfig reads Config from the environment. It does not validate; New does.
func LoadConfig() (Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("SESSIOND")
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", "0.0.0.0:8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("HTTP_READ_HEADER_TIMEOUT", 5*time.Second)
	v.SetDefault("HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("HTTP_MAX_HEADER_BYTES", 1<<20)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 0)
	v.SetDefault("DB_CONNECT_TIMEOUT", 10*time.Second)
	v.SetDefault("DB_WAIT", db.DefaultWait)
	v.SetDefault("MIGRATE_ON_START", false)

	v.SetDefault("SESSION_BACKEND", BackendPostgres)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "sessiond:")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("TOKEN_HMAC_KEY", "")
	v.SetDefault("AUTH_ISSUER", "sessiond")
	v.SetDefault("ACCESS_TOKEN_TTL", 15*time.Minute)
	v.SetDefault("REFRESH_TOKEN_TTL", 168*time.Hour)
	v.SetDefault("REFRESH_HASH_COST", 10)
	v.SetDefault("SWEEP_INTERVAL", 10*time.Minute)

	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_SAMESITE", "strict")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("MAX_BODY_BYTES", 1<<20)
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("CLIENT_URL", "")

	v.SetDefault("LOGIN_RATE_MAX", 10)
	v.SetDefault("LOGIN_RATE_IP_MAX", 50)
	v.SetDefault("LOGIN_RATE_WINDOW", 15*time.Minute)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	return cfg, nil
}

// Validate checks cross-field rules and every sub-config.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("%w: HTTP_ADDR must be set", ErrConfig)
	}
	switch c.SessionBackend {
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("%w: SESSION_BACKEND=postgres requires DATABASE_URL", ErrConfig)
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("%w: SESSION_BACKEND=redis requires REDIS_ADDR", ErrConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown SESSION_BACKEND %q", ErrConfig, c.SessionBackend)
	}
	if c.MigrateOnStart && strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("%w: MIGRATE_ON_START requires DATABASE_URL", ErrConfig)
	}
	if c.LoginRateWindow <= 0 {
		return fmt.Errorf("%w: LOGIN_RATE_WINDOW must be > 0", ErrConfig)
	}

	if err := c.sessionConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if _, err := c.apiConfig(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if c.DatabaseURL != "" {
		if err := c.dbConfig().Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrConfig, err)
		}
	}
	return nil
}

func (c Config) sessionConfig() session.Config {
	s := session.DefaultConfig()
	s.Issuer = c.AuthIssuer
	s.AccessTokenTTL = c.AccessTokenTTL
	s.RefreshTTL = c.RefreshTokenTTL
	s.RefreshHashCost = c.RefreshHashCost
	s.SigningSecret = c.JWTSecret
	s.IdentifierKey = c.TokenHMACKey
	return s
}

func (c Config) apiConfig() (api.Config, error) {
	a := api.DefaultConfig()
	sameSite, err := api.ParseSameSite(c.CookieSameSite)
	if err != nil {
		return api.Config{}, err
	}
	a.CookieSameSite = sameSite
	a.CookieSecure = c.CookieSecure
	a.CookieDomain = strings.TrimSpace(c.CookieDomain)
	a.TrustProxy = c.TrustProxy
	a.MaxBodyBytes = c.MaxBodyBytes
	a.DBWait = c.DBWait
	return a, a.Validate()
}

// corsOrigins is CORS_ORIGINS (comma separated) plus CLIENT_URL, deduplicated.
func (c Config) corsOrigins() []string {
	var out []string
	seen := make(map[string]struct{})
	for _, o := range append(strings.Split(c.CORSOrigins, ","), c.ClientURL) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

func (c Config) dbConfig() db.Config {
	d := db.DefaultConfig()
	d.DatabaseURL = c.DatabaseURL
	d.MaxConns = c.DBMaxConns
	d.MinConns = c.DBMinConns
	d.ConnectTimeout = c.DBConnectTimeout
	return d
}

func (c Config) loginPolicy() auth.LoginPolicy {
	return auth.LoginPolicy{
		MaxPerEmail: c.LoginRateMax,
		MaxPerIP:    c.LoginRateIPMax,
		Window:      c.LoginRateWindow,
	}
}
