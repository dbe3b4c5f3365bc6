package session

import (
	"fmt"
	"strings"
	"time"

	"sessiond/cmd/security/token"

	"golang.org/x/crypto/bcrypt"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTTL is the lifetime of a session from its last rotation.
	RefreshTTL time.Duration

	// ClockSkew is the leeway applied when verifying access tokens.
	ClockSkew time.Duration

	// RefreshHashCost is the bcrypt cost used for refresh secret hashes.
	RefreshHashCost int

	// MaxSecretBytes bounds presented refresh secrets; longer input is rejected
	// before any hashing or storage access.
	MaxSecretBytes int

	// SigningSecret is the HS256 key for access tokens.
	SigningSecret string

	// IdentifierKey is the HMAC key used to derive refresh lookup identifiers.
	IdentifierKey string
}

// DefaultConfig returns defaults suitable for development. Secrets are left empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		Issuer:          "sessiond",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTTL:      7 * 24 * time.Hour,
		ClockSkew:       30 * time.Second,
		RefreshHashCost: 10,
		MaxSecretBytes:  512,
	}
}

// Validate reports configuration problems wrapped in ErrConfig.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("%w: issuer is empty", ErrConfig)
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("%w: access token ttl must be > 0", ErrConfig)
	}
	if c.RefreshTTL <= 0 {
		return fmt.Errorf("%w: refresh ttl must be > 0", ErrConfig)
	}
	if c.RefreshTTL < c.AccessTokenTTL {
		return fmt.Errorf("%w: refresh ttl shorter than access token ttl", ErrConfig)
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("%w: clock skew must be >= 0", ErrConfig)
	}
	if c.RefreshHashCost < bcrypt.MinCost || c.RefreshHashCost > bcrypt.MaxCost {
		return fmt.Errorf("%w: refresh hash cost must be within %d..%d", ErrConfig, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.MaxSecretBytes < 64 {
		return fmt.Errorf("%w: max secret bytes must be >= 64", ErrConfig)
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("%w: signing secret is empty", ErrConfig)
	}
	if _, err := token.KeyFromString(c.IdentifierKey, token.MinKeyBytes); err != nil {
		return fmt.Errorf("%w: identifier key: %v", ErrConfig, err)
	}
	return nil
}
