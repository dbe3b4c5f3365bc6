package session

import (
	"context"
	"time"
)

// Meta describes the client that presented a credential.
type Meta struct {
	UserAgent string
	IP        string
}

// Record is one refresh-token lineage.
//
// Only the rotation engine writes the Current* and Previous* fields. An empty
// PreviousIdentifier means the lineage has never rotated.
type Record struct {
	ID     string
	UserID string

	CurrentHash       string
	CurrentIdentifier string

	PreviousHash       string
	PreviousIdentifier string

	CreatedAt time.Time
	RotatedAt *time.Time
	ExpiresAt time.Time

	UserAgent string
	IP        string
}

// Rotation describes a conditional in-place rotation of a record.
//
// The store applies it only if the record's current identifier still equals
// Observed. On success the old current pair becomes the previous pair.
type Rotation struct {
	ID            string
	Observed      string
	NewHash       string
	NewIdentifier string
	Now           time.Time
	ExpiresAt     time.Time
}

// Store abstracts persistence for session records.
type Store interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec Record) error

	// FindByIdentifier returns the record whose current or previous identifier
	// equals identifier, or ErrNotFound.
	FindByIdentifier(ctx context.Context, identifier string) (Record, error)

	// Rotate applies r atomically. It returns false, with a nil error, when the
	// record is gone or its current identifier no longer equals r.Observed.
	Rotate(ctx context.Context, r Rotation) (bool, error)

	// Delete removes a record by id. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteByUser removes every record of userID and returns how many were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// DeleteExpired removes records with expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
