package password

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cast"
)

// Argon2idParams is the Argon2id cost encoded into every stored hash.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds what Register accepts as a password.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the zero-value-unusable settings bundle shared by the credential
// stores and the dummy verifier.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline used for account credentials.
// Length bounds follow the account API contract (8..100 characters).
func DefaultConfig() Config {
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      100,
			RejectVeryWeak: false,
		},
	}
}

// envPrefix namespaces every variable FromEnv reads.
const envPrefix = "SESSIOND_"

// numericEnv binds one unsigned setting to its environment variable.
type numericEnv struct {
	name     string
	min, max uint32
	set      func(*Config, uint32)
}

var numericEnvs = []numericEnv{
	{"PASSWORD_MIN_LEN", 1, 1024, func(c *Config, n uint32) { c.Policy.MinLength = int(n) }},
	{"PASSWORD_MAX_LEN", 1, 4096, func(c *Config, n uint32) { c.Policy.MaxLength = int(n) }},
	{"ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(c *Config, n uint32) { c.Params.MemoryKiB = n }},
	{"ARGON2_ITERATIONS", 1, 20, func(c *Config, n uint32) { c.Params.Iterations = n }},
	{"ARGON2_PARALLELISM", 1, 64, func(c *Config, n uint32) { c.Params.Parallelism = uint8(n) }}, // #nosec G115 -- max 64.
	{"ARGON2_SALT_LEN", 8, 64, func(c *Config, n uint32) { c.Params.SaltLength = n }},
	{"ARGON2_KEY_LEN", 16, 64, func(c *Config, n uint32) { c.Params.KeyLength = n }},
}

// FromEnv starts from DefaultConfig and applies any SESSIOND_PASSWORD_* and
// SESSIOND_ARGON2_* overrides:
//
//	SESSIOND_PASSWORD_MIN_LEN, SESSIOND_PASSWORD_MAX_LEN,
//	SESSIOND_PASSWORD_REJECT_VERY_WEAK (bool),
//	SESSIOND_ARGON2_MEMORY_KIB, SESSIOND_ARGON2_ITERATIONS,
//	SESSIOND_ARGON2_PARALLELISM, SESSIOND_ARGON2_SALT_LEN, SESSIOND_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, e := range numericEnvs {
		raw, ok := os.LookupEnv(envPrefix + e.name)
		if !ok {
			continue
		}
		n, err := cast.ToUint32E(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("%s%s: not an unsigned integer", envPrefix, e.name)
		}
		if n < e.min || n > e.max {
			return Config{}, fmt.Errorf("%s%s: out of range [%d..%d]", envPrefix, e.name, e.min, e.max)
		}
		e.set(&cfg, n)
	}

	if raw, ok := os.LookupEnv(envPrefix + "PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := cast.ToBoolE(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("%sPASSWORD_REJECT_VERY_WEAK: invalid boolean", envPrefix)
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}
