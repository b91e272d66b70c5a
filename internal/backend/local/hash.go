// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package local

import (
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// dummyHash is compared against when the email is unknown so response
// time stays consistent and does not leak account existence. It is a
// bcrypt hash of random bytes that will never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing consistency, not a credential.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// hashPassword produces a bcrypt hash of the password.
func hashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", oops.Code("AUTH_WEAK_PASSWORD").
			Errorf("password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(hash), nil
}

// verifyPassword reports whether the password matches the hash.
func verifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
