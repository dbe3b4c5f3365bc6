package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. A single mutex serializes rotations, which
// gives the same single-winner behavior as the conditional update in Postgres.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]*Record
	ids  map[string]string // identifier -> record id (current and previous)
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*Record),
		ids:  make(map[string]string),
	}
}

// Create inserts rec.
func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[rec.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := s.ids[rec.CurrentIdentifier]; ok {
		return ErrDuplicate
	}
	cp := rec
	s.byID[rec.ID] = &cp
	s.ids[rec.CurrentIdentifier] = rec.ID
	if rec.PreviousIdentifier != "" {
		s.ids[rec.PreviousIdentifier] = rec.ID
	}
	return nil
}

// FindByIdentifier returns a copy of the matching record.
func (s *MemoryStore) FindByIdentifier(_ context.Context, identifier string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.ids[identifier]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

// Rotate applies r if the record still carries r.Observed as its current identifier.
func (s *MemoryStore) Rotate(_ context.Context, r Rotation) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[r.ID]
	if !ok || rec.CurrentIdentifier != r.Observed {
		return false, nil
	}
	if _, taken := s.ids[r.NewIdentifier]; taken {
		return false, ErrDuplicate
	}

	if rec.PreviousIdentifier != "" {
		delete(s.ids, rec.PreviousIdentifier)
	}
	rec.PreviousHash, rec.PreviousIdentifier = rec.CurrentHash, rec.CurrentIdentifier
	rec.CurrentHash, rec.CurrentIdentifier = r.NewHash, r.NewIdentifier
	rotatedAt := r.Now
	rec.RotatedAt = &rotatedAt
	rec.ExpiresAt = r.ExpiresAt
	s.ids[r.NewIdentifier] = rec.ID
	return true, nil
}

// Delete removes the record with id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteLocked(id)
	return nil
}

// DeleteByUser removes all records of userID.
func (s *MemoryStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.byID {
		if rec.UserID == userID {
			s.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

// DeleteExpired removes all records with ExpiresAt <= now.
func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.byID {
		if !rec.ExpiresAt.After(now) {
			s.deleteLocked(id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *MemoryStore) deleteLocked(id string) {
	rec, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.ids, rec.CurrentIdentifier)
	if rec.PreviousIdentifier != "" {
		delete(s.ids, rec.PreviousIdentifier)
	}
	delete(s.byID, id)
}
