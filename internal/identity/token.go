// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// TokenExpiry is how long an issued access token remains valid.
const TokenExpiry = 30 * 24 * time.Hour

// tokenSigningMethod is the only accepted JWT algorithm.
var tokenSigningMethod = jwt.SigningMethodHS256

// TokenIssuer signs and verifies access tokens.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewTokenIssuer creates a TokenIssuer with the given signing secret.
func NewTokenIssuer(secret string) (*TokenIssuer, error) {
	if secret == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("token signing secret is required")
	}
	return &TokenIssuer{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs an access token whose subject is the user ID.
func (i *TokenIssuer) Issue(userID ulid.ULID) (string, error) {
	now := i.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
	}

	token, err := jwt.NewWithClaims(tokenSigningMethod, claims).SignedString(i.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return token, nil
}

// Verify parses and validates an access token, returning the user ID it
// was issued for.
func (i *TokenIssuer) Verify(tokenString string) (ulid.ULID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(_ *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{tokenSigningMethod.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID").Wrap(err)
	}

	userID, err := ulid.Parse(claims.Subject)
	if err != nil {
		return ulid.ULID{}, oops.Code("TOKEN_INVALID").With("subject", claims.Subject).Wrap(err)
	}
	return userID, nil
}
