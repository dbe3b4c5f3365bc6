package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"sessiond/cmd/security/token"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// refreshSecretBytes is the entropy of a refresh secret. Hex-encoded it is 64
// chars, under bcrypt's 72-byte input limit.
const refreshSecretBytes = 32

// AccessClaims is the access-token payload.
type AccessClaims struct {
	// UserID mirrors sub under the claim name legacy clients read.
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Codec mints and verifies access tokens and handles refresh secret material.
// It is safe for concurrent use.
type Codec struct {
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
	cost      int

	signKey []byte
	ids     *token.Deriver
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ids, err := token.NewDeriver(cfg.IdentifierKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	return &Codec{
		issuer:    cfg.Issuer,
		ttl:       cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		cost:      cfg.RefreshHashCost,
		signKey:   []byte(cfg.SigningSecret),
		ids:       ids,
	}, nil
}

// MintAccessToken signs an HS256 access token for userID valid from now.
func (c *Codec) MintAccessToken(userID string, now time.Time) (string, time.Time, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", time.Time{}, errors.New("session: empty user id")
	}

	now = now.UTC()
	exp := now.Add(c.ttl)

	claims := AccessClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccessToken verifies signature, algorithm, issuer and expiry as of now.
// Expired tokens return ErrAccessTokenExpired; every other failure returns
// ErrAccessTokenInvalid.
func (c *Codec) ParseAccessToken(raw string, now time.Time) (AccessClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AccessClaims{}, ErrAccessTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithLeeway(c.clockSkew),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims AccessClaims
	tok, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.signKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessClaims{}, ErrAccessTokenExpired
		}
		return AccessClaims{}, ErrAccessTokenInvalid
	}
	if !tok.Valid || claims.Subject == "" || claims.UserID != claims.Subject {
		return AccessClaims{}, ErrAccessTokenInvalid
	}
	return claims, nil
}

// GenerateRefreshSecret returns 32 random bytes hex-encoded.
func GenerateRefreshSecret() (string, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DeriveIdentifier returns the lookup identifier for secret.
func (c *Codec) DeriveIdentifier(secret string) string {
	return c.ids.Derive(secret)
}

// HashSecret returns a salted bcrypt hash of secret.
func (c *Codec) HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), c.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifySecret reports whether secret matches hash.
func (c *Codec) VerifySecret(secret, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// newSecret generates a refresh secret together with its hash and identifier.
func (c *Codec) newSecret() (secret, hash, identifier string, err error) {
	secret, err = GenerateRefreshSecret()
	if err != nil {
		return "", "", "", err
	}
	hash, err = c.HashSecret(secret)
	if err != nil {
		return "", "", "", err
	}
	return secret, hash, c.DeriveIdentifier(secret), nil
}
