// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package identity

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// User is an account known to the identity service.
// Email and PhoneNumber are optional alternate login identifiers.
type User struct {
	ID           ulid.ULID
	Username     string
	Email        *string
	PhoneNumber  *string
	FirstName    *string
	LastName     *string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserRepository manages user persistence.
type UserRepository interface {
	// GetByIdentifier retrieves a user by username, email, or phone number.
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// Create stores a new user.
	Create(ctx context.Context, user *User) error

	// UpdatePassword replaces a user's password hash.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// UpdateProfile updates the mutable profile fields of a user.
	UpdateProfile(ctx context.Context, user *User) error
}
