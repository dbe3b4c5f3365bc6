package identity

import (
	"context"
	"time"
)

// User is the public projection of an account. It never carries the password hash.
type User struct {
	ID        string
	Email     string
	EmailNorm string
	FullName  string

	BusinessName    *string
	Address         *string
	Phone           *string
	ProfileImageURL *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateUserInput describes a registration request. Password is plain text and is
// hashed inside the store.
type CreateUserInput struct {
	FullName        string
	Email           string
	Password        string
	ProfileImageURL *string
	Now             time.Time
}

// UpdateProfileInput is a partial profile update.
//
// A nil field is left unchanged. For the optional fields a pointer to "" clears
// the stored value. FullName, when set, must still be 2..100 characters.
type UpdateProfileInput struct {
	FullName        *string
	BusinessName    *string
	Address         *string
	Phone           *string
	ProfileImageURL *string
	Now             time.Time
}

// Store is the credential persistence boundary.
type Store interface {
	// CreateUser inserts the user and its password hash. Returns ConflictError{Field:"email"}
	// when the normalized email is taken.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserByID returns NotFoundError when absent.
	GetUserByID(ctx context.Context, id string) (User, error)

	// GetUserByEmail looks up by normalized email. Returns NotFoundError when absent.
	GetUserByEmail(ctx context.Context, email string) (User, error)

	// VerifyPassword checks password against the stored hash for email.
	// Unknown emails return NotFoundError after a dummy verification.
	VerifyPassword(ctx context.Context, email, password string) (User, bool, error)

	// UpdateProfile applies a partial update and returns the new projection.
	UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (User, error)
}
