// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package local

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

const (
	tokenIssuer       = "authsync-local"
	refreshTokenBytes = 32
)

// accessClaims is the JWT payload of a local access token.
type accessClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// mintAccessToken signs a JWT for the user, expiring at expiresAt.
func mintAccessToken(signingKey []byte, userID ulid.ULID, email string, expiresAt time.Time) (string, error) {
	claims := accessClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", oops.Code("AUTH_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// generateRefreshToken creates a random refresh token and its sha256 hex
// hash. Only the hash is kept server-side.
func generateRefreshToken() (token, hash string, err error) {
	raw := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", oops.Code("AUTH_TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(raw)
	return token, hashRefreshToken(token), nil
}

// hashRefreshToken returns the sha256 hex hash of a refresh token.
func hashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
