package identity

import (
	"errors"
	"strings"
	"time"

	"sessiond/cmd/security/password"
)

// newUserRecord is a validated, hashed registration ready to persist.
type newUserRecord struct {
	user User
	hash string
}

// ValidateCreate checks a registration without hashing or touching storage.
func ValidateCreate(in CreateUserInput, pw password.Config) error {
	_, _, err := checkCreate("identity.ValidateCreate", in, pw)
	return err
}

func checkCreate(op string, in CreateUserInput, pw password.Config) (fullName, email string, err error) {
	fullName, ok := NormalizeFullName(in.FullName)
	if !ok {
		return "", "", invalid(op, "full name must be 2..100 characters")
	}
	email = strings.TrimSpace(in.Email)
	if !ValidEmail(email) {
		return "", "", invalid(op, "invalid email")
	}
	if err := pw.Validate(in.Password); err != nil {
		return "", "", mapPasswordErr(op, err)
	}
	return fullName, email, nil
}

func mapPasswordErr(op string, err error) error {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, password.ErrPasswordTooLong),
		errors.Is(err, password.ErrWeakPassword):
		return invalid(op, err.Error())
	default:
		return err
	}
}

func prepareCreate(op string, in CreateUserInput, pw password.Config) (newUserRecord, error) {
	fullName, email, err := checkCreate(op, in, pw)
	if err != nil {
		return newUserRecord{}, err
	}

	hash, err := pw.Hash(in.Password)
	if err != nil {
		return newUserRecord{}, mapPasswordErr(op, err)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewID(now)
	if err != nil {
		return newUserRecord{}, err
	}

	return newUserRecord{
		user: User{
			ID:              id,
			Email:           email,
			EmailNorm:       NormalizeEmail(email),
			FullName:        fullName,
			ProfileImageURL: trimPtr(in.ProfileImageURL),
			CreatedAt:       now,
			UpdatedAt:       now,
		},
		hash: hash,
	}, nil
}

// applyProfile validates in and returns the updated copy of u.
func applyProfile(op string, u User, in UpdateProfileInput) (User, error) {
	if in.FullName != nil {
		name, ok := NormalizeFullName(*in.FullName)
		if !ok {
			return User{}, invalid(op, "full name must be 2..100 characters")
		}
		u.FullName = name
	}
	if in.BusinessName != nil {
		u.BusinessName = trimPtr(in.BusinessName)
	}
	if in.Address != nil {
		u.Address = trimPtr(in.Address)
	}
	if in.Phone != nil {
		u.Phone = trimPtr(in.Phone)
	}
	if in.ProfileImageURL != nil {
		u.ProfileImageURL = trimPtr(in.ProfileImageURL)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	u.UpdatedAt = now
	return u, nil
}

// trimPtr trims a string pointer, returning nil if the result is empty.
func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
