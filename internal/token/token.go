// Driftline - Client-Side Chat State Synchronization Engine
// Copyright 2026 Driftline Contributors
// SPDX-License-Identifier: Apache-2.0
// https://github.com/driftline/driftline

// Package token mints and verifies the JWT user tokens presented on the
// realtime connection. Tokens carry the user id in the "user_id" claim and
// are signed with HS256.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken reports a token that failed signature or shape checks.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingUserID reports a structurally valid token without a user_id
	// claim.
	ErrMissingUserID = errors.New("token has no user_id claim")
)

const userIDClaim = "user_id"

// Provider mints and verifies tokens with a shared secret.
type Provider struct {
	secret []byte
}

// NewProvider creates a provider for the given signing secret.
func NewProvider(secret []byte) (*Provider, error) {
	if len(secret) == 0 {
		return nil, errors.New("empty signing secret")
	}
	return &Provider{secret: secret}, nil
}

// UserToken mints a token for userID. A zero expiry means the token never
// expires.
func (p *Provider) UserToken(userID string, expiresAt time.Time) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	claims := jwt.MapClaims{
		userIDClaim: userID,
		"iat":       jwt.NewNumericDate(time.Now()),
	}
	if !expiresAt.IsZero() {
		claims["exp"] = jwt.NewNumericDate(expiresAt)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// UserID verifies raw and extracts its user_id claim.
func (p *Provider) UserID(raw string) (string, error) {
	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	userID, ok := claims[userIDClaim].(string)
	if !ok || userID == "" {
		return "", ErrMissingUserID
	}
	return userID, nil
}

// DevToken builds an unsigned development token recognized by backends
// running with auth checks disabled. Never valid in production.
func DevToken(userID string) (string, error) {
	if userID == "" {
		return "", ErrMissingUserID
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{userIDClaim: userID})
	signed, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		return "", fmt.Errorf("encode dev token: %w", err)
	}
	return signed, nil
}
