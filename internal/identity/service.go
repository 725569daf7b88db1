// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// dummyPasswordHash is a syntactically valid bcrypt hash that matches no
// password. Verifying against it keeps login cost constant when the
// identifier does not resolve to a user.
const dummyPasswordHash = "$2a$10$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Token is the result of a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Service implements credential verification and token issuance.
type Service struct {
	users  UserRepository
	hasher PasswordHasher
	issuer *TokenIssuer
	logger *slog.Logger
}

// NewService creates an identity Service.
func NewService(users UserRepository, hasher PasswordHasher, issuer *TokenIssuer) (*Service, error) {
	return NewServiceWithLogger(users, hasher, issuer, slog.Default())
}

// NewServiceWithLogger creates an identity Service with a custom logger.
func NewServiceWithLogger(users UserRepository, hasher PasswordHasher, issuer *TokenIssuer, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{users: users, hasher: hasher, issuer: issuer, logger: logger}, nil
}

// Login verifies the identifier and password and issues an access token.
// The identifier may be a username, email address, or phone number.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Token, error) {
	user, err := s.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn the same bcrypt cost as a real verification so
			// response timing does not reveal which identifiers exist.
			_, _ = s.hasher.Verify(password, dummyPasswordHash)
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid credentials")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").Wrap(err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_VERIFY_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	if !ok {
		s.logger.DebugContext(ctx, "password mismatch", "user_id", user.ID.String())
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid credentials")
	}

	if !user.IsActive {
		return nil, oops.Code("AUTH_ACCOUNT_DISABLED").With("user_id", user.ID.String()).Errorf("account disabled")
	}

	accessToken, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID.String())
	return &Token{AccessToken: accessToken, TokenType: "bearer"}, nil
}

// Authenticate resolves an access token to the user it was issued for.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*User, error) {
	userID, err := s.issuer.Verify(tokenString)
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_INVALID").Wrap(err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_TOKEN_INVALID").Errorf("token subject no longer exists")
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").Wrap(err)
	}
	if !user.IsActive {
		return nil, oops.Code("AUTH_ACCOUNT_DISABLED").With("user_id", user.ID.String()).Errorf("account disabled")
	}
	return user, nil
}

// UpdateProfile persists changes to a user's profile fields.
func (s *Service) UpdateProfile(ctx context.Context, user *User) error {
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return oops.Code("AUTH_PROFILE_UPDATE_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	return nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, user *User, currentPassword, newPassword string) error {
	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_VERIFY_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}
	if !ok {
		return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return oops.Code("AUTH_PASSWORD_UPDATE_FAILED").With("user_id", user.ID.String()).Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", user.ID.String())
	return nil
}
