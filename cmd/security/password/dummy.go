package password

import "sync"

const dummyPassword = "sessiond-timing-equalizer-password"

// DummyVerifier performs a throwaway Verify against a lazily built hash.
type DummyVerifier struct {
	cfg  Config
	once sync.Once
	hash string
}

// NewDummyVerifier returns a verifier that uses cfg's Argon2id parameters.
func NewDummyVerifier(cfg Config) *DummyVerifier {
	return &DummyVerifier{cfg: cfg}
}

// Verify burns one verification worth of CPU. The result is always discarded.
func (d *DummyVerifier) Verify(password string) {
	if d == nil {
		return
	}
	d.once.Do(func() {
		// Policy is bypassed on purpose: the dummy must hash even under a strict MinLength.
		cfg := d.cfg
		cfg.Policy = Policy{MinLength: 0, MaxLength: len(dummyPassword)}
		h, err := cfg.Hash(dummyPassword)
		if err == nil {
			d.hash = h
		}
	})
	if d.hash == "" {
		return
	}
	_, _ = d.cfg.Verify(d.hash, password)
}
