package identity

import (
	"context"
	"strings"
	"sync"

	"sessiond/cmd/security/password"
)

// MemoryStore is an in-process Store for tests and the memory backend.
type MemoryStore struct {
	mu      sync.RWMutex
	pw      password.Config
	dummy   *password.DummyVerifier
	byID    map[string]*memUser
	byEmail map[string]string // email_norm -> id
}

type memUser struct {
	user User
	hash string
}

// NewMemoryStore returns an empty MemoryStore using pw for hashing.
func NewMemoryStore(pw password.Config) *MemoryStore {
	return &MemoryStore{
		pw:      pw,
		dummy:   password.NewDummyVerifier(pw),
		byID:    make(map[string]*memUser),
		byEmail: make(map[string]string),
	}
}

// CreateUser stores a new user; the normalized email must be unused.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	rec, err := prepareCreate(op, in, s.pw)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[rec.user.EmailNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	s.byID[rec.user.ID] = &memUser{user: rec.user, hash: rec.hash}
	s.byEmail[rec.user.EmailNorm] = rec.user.ID
	return rec.user, nil
}

// GetUserByID returns the user with id.
func (s *MemoryStore) GetUserByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return m.user, nil
}

// GetUserByEmail returns the user with the normalized email.
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByEmail", Resource: "user"}
	}
	return s.byID[id].user, nil
}

// VerifyPassword checks pw against the stored hash for email.
func (s *MemoryStore) VerifyPassword(_ context.Context, email, pw string) (User, bool, error) {
	const op = "identity.VerifyPassword"

	s.mu.RLock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	var m memUser
	if ok {
		m = *s.byID[id]
	}
	s.mu.RUnlock()

	if !ok {
		s.dummy.Verify(pw)
		return User{}, false, NotFoundError{Op: op, Resource: "user"}
	}
	match, err := s.pw.Verify(m.hash, pw)
	if err != nil {
		return User{}, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "stored hash unreadable"}
	}
	if match && s.pw.NeedsRehash(m.hash) {
		s.rehash(id, m.hash, pw)
	}
	return m.user, match, nil
}

// rehash upgrades a stored hash to the current parameters unless it changed meanwhile.
func (s *MemoryStore) rehash(id, old, pw string) {
	h, err := s.pw.Hash(pw)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.byID[id]; ok && m.hash == old {
		m.hash = h
	}
}

// UpdateProfile applies a partial update.
func (s *MemoryStore) UpdateProfile(_ context.Context, id string, in UpdateProfileInput) (User, error) {
	const op = "identity.UpdateProfile"

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	next, err := applyProfile(op, m.user, in)
	if err != nil {
		return User{}, err
	}
	m.user = next
	return next, nil
}
