package password

import (
	"os"
	"testing"
)

var passwordEnvKeys = []string{
	"SESSIOND_PASSWORD_MIN_LEN",
	"SESSIOND_PASSWORD_MAX_LEN",
	"SESSIOND_PASSWORD_REJECT_VERY_WEAK",
	"SESSIOND_ARGON2_MEMORY_KIB",
	"SESSIOND_ARGON2_ITERATIONS",
	"SESSIOND_ARGON2_PARALLELISM",
	"SESSIOND_ARGON2_SALT_LEN",
	"SESSIOND_ARGON2_KEY_LEN",
}

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range passwordEnvKeys {
		t.Setenv(k, "") // restores the original value after the test
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("FromEnv without overrides = %+v", cfg)
	}

	if cfg.Policy.MinLength != 8 || cfg.Policy.MaxLength != 100 {
		t.Fatalf("unexpected default policy: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 64*1024 || cfg.Params.Iterations != 3 {
		t.Fatalf("unexpected default params: %+v", cfg.Params)
	}
	if cfg.Params.Parallelism < 1 || cfg.Params.Parallelism > 4 {
		t.Fatalf("parallelism not clamped: %d", cfg.Params.Parallelism)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("SESSIOND_PASSWORD_MIN_LEN", "10")
	t.Setenv("SESSIOND_PASSWORD_MAX_LEN", "200")
	t.Setenv("SESSIOND_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("SESSIOND_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("SESSIOND_ARGON2_ITERATIONS", "4")
	t.Setenv("SESSIOND_ARGON2_PARALLELISM", "2")
	t.Setenv("SESSIOND_ARGON2_SALT_LEN", "24")
	t.Setenv("SESSIOND_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	want := Config{
		Params: Argon2idParams{MemoryKiB: 32768, Iterations: 4, Parallelism: 2, SaltLength: 24, KeyLength: 32},
		Policy: Policy{MinLength: 10, MaxLength: 200, RejectVeryWeak: true},
	}
	if cfg != want {
		t.Fatalf("FromEnv = %+v, want %+v", cfg, want)
	}
}

func TestFromEnv_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"min above max", map[string]string{"SESSIOND_PASSWORD_MIN_LEN": "20", "SESSIOND_PASSWORD_MAX_LEN": "10"}},
		{"memory too small", map[string]string{"SESSIOND_ARGON2_MEMORY_KIB": "1024"}},
		{"negative iterations", map[string]string{"SESSIOND_ARGON2_ITERATIONS": "-1"}},
		{"not a number", map[string]string{"SESSIOND_ARGON2_KEY_LEN": "lots"}},
		{"bad bool", map[string]string{"SESSIOND_PASSWORD_REJECT_VERY_WEAK": "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %v", tt.env)
			}
		})
	}
}
