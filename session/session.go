// pubky-go is a self-sovereign identity and personal-storage platform.
// Copyright (C) 2024 The pubky-go Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package session implements the server-side session record: a one-to-many
// (per user) row granting a cookie-bearing client a fixed set of
// capabilities. Sessions are immutable once created; a signer presenting a
// narrower-capability token always creates a new row rather than editing
// an existing one (spec.md §9).
package session

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"

	"github.com/pubky-network/pubky-go/cap"
	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
	"github.com/pubky-network/pubky-go/pubkey"
)

// SecretLen is the length, in characters, of a session secret.
const SecretLen = 26

// crockford is the Crockford base32 alphabet used for session secrets,
// matching the 26-character secret format in the original schema
// (m20250813_create_session.rs).
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// ErrNotFound is returned by a Store when no session exists for a secret.
var ErrNotFound = errors.New("session: not found")

// Session is one row: a user's public key, the capabilities granted to
// this particular cookie, and the secret that doubles as the cookie value.
type Session struct {
	ID           int64
	Secret       string
	UserPubkey   crypto.PublicKey
	Capabilities cap.Capabilities
	UserAgent    string
	CreatedAt    ptime.Timestamp
}

// New constructs a Session with a freshly generated secret. The caller
// (a Store implementation) is responsible for assigning ID.
func New(userPubkey crypto.PublicKey, capabilities cap.Capabilities, userAgent string) (Session, error) {
	secret, err := NewSecret()
	if err != nil {
		return Session{}, err
	}
	return Session{
		Secret:       secret,
		UserPubkey:   userPubkey,
		Capabilities: capabilities,
		UserAgent:    userAgent,
		CreatedAt:    ptime.Now(),
	}, nil
}

// NewSecret generates a random 26-character Crockford base32 secret.
func NewSecret() (string, error) {
	raw := make([]byte, 16) // 16 bytes -> 26 base32 chars (ceil(16*8/5))
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return crockford.EncodeToString(raw)[:SecretLen], nil
}

// CookieName is the cookie name a session's secret is carried under: the
// user's 52-character public key (spec.md §4.7).
func CookieName(userPubkey crypto.PublicKey) string {
	return pubkey.Encode(userPubkey)
}

// Store persists Sessions. Delete is idempotent: deleting an
// already-absent secret is not an error (spec.md §8 invariant 11).
type Store interface {
	Create(ctx context.Context, s Session) (Session, error)
	Get(ctx context.Context, secret string) (Session, error)
	Delete(ctx context.Context, secret string) error
	ListByUser(ctx context.Context, userPubkey crypto.PublicKey) ([]Session, error)
}
