package session

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func mustCodec(t *testing.T, cfg Config) *Codec {
	t.Helper()

	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestNewCodec_EmptySigningSecret(t *testing.T) {
	t.Parallel()

	cfg := validTestConfig()
	cfg.SigningSecret = ""
	if _, err := NewCodec(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestAccessToken_MintAndParse(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, validTestConfig())
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tok, exp, err := c.MintAccessToken("01J0000000000000000000USER", now)
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}
	if want := now.Add(15 * time.Minute); !exp.Equal(want) {
		t.Fatalf("exp: got %v want %v", exp, want)
	}

	claims, err := c.ParseAccessToken(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "01J0000000000000000000USER" || claims.UserID != claims.Subject {
		t.Fatalf("claims: %+v", claims)
	}
	if claims.Issuer != "sessiond" {
		t.Fatalf("issuer: %q", claims.Issuer)
	}
}

func TestAccessToken_Expired(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, validTestConfig())
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tok, _, err := c.MintAccessToken("u1", now)
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}
	_, err = c.ParseAccessToken(tok, now.Add(16*time.Minute))
	if !errors.Is(err, ErrAccessTokenExpired) {
		t.Fatalf("expected ErrAccessTokenExpired, got %v", err)
	}

	// Within skew is still accepted.
	if _, err := c.ParseAccessToken(tok, now.Add(15*time.Minute+10*time.Second)); err != nil {
		t.Fatalf("expected token valid within clock skew, got %v", err)
	}
}

func TestAccessToken_Rejections(t *testing.T) {
	t.Parallel()

	cfg := validTestConfig()
	c := mustCodec(t, cfg)
	now := time.Now().UTC()

	good, _, err := c.MintAccessToken("u1", now)
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	otherKey := cfg
	otherKey.SigningSecret = "a-different-secret"
	foreign, _, err := mustCodec(t, otherKey).MintAccessToken("u1", now)
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	otherIssuer := cfg
	otherIssuer.Issuer = "someone-else"
	wrongIss, _, err := mustCodec(t, otherIssuer).MintAccessToken("u1", now)
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "u1", "uid": "u1", "iss": "sessiond", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	tests := []struct {
		name string
		tok  string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"tampered", good[:len(good)-2] + "xx"},
		{"foreign key", foreign},
		{"wrong issuer", wrongIss},
		{"alg none", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := c.ParseAccessToken(tt.tok, now); !errors.Is(err, ErrAccessTokenInvalid) {
				t.Fatalf("expected ErrAccessTokenInvalid, got %v", err)
			}
		})
	}
}

func TestRefreshSecretMaterial(t *testing.T) {
	t.Parallel()

	c := mustCodec(t, validTestConfig())

	s1, err := GenerateRefreshSecret()
	if err != nil {
		t.Fatalf("GenerateRefreshSecret: %v", err)
	}
	s2, _ := GenerateRefreshSecret()
	if len(s1) != 64 || strings.Trim(s1, "0123456789abcdef") != "" {
		t.Fatalf("expected 64 hex chars, got %q", s1)
	}
	if s1 == s2 {
		t.Fatalf("expected distinct secrets")
	}

	if c.DeriveIdentifier(s1) != c.DeriveIdentifier(s1) {
		t.Fatalf("identifier must be deterministic")
	}
	if c.DeriveIdentifier(s1) == c.DeriveIdentifier(s2) {
		t.Fatalf("identifiers of distinct secrets collided")
	}

	h1, err := c.HashSecret(s1)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	h2, _ := c.HashSecret(s1)
	if h1 == h2 {
		t.Fatalf("expected salted hashes to differ")
	}
	if !c.VerifySecret(s1, h1) || !c.VerifySecret(s1, h2) {
		t.Fatalf("expected secret to verify against its hashes")
	}
	if c.VerifySecret(s2, h1) {
		t.Fatalf("expected other secret to fail verification")
	}
	if c.VerifySecret(s1, "") {
		t.Fatalf("expected empty hash to fail verification")
	}
}
