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

// Package pubkey codecs 32-byte public keys to and from their textual and
// transport forms, and recognizes the pubky-TLD addressing conventions
// (`pubky://` and `https://_pubky.<pubkey>/...`) used throughout the rest of
// the platform.
package pubkey

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tv42/zbase32"

	"github.com/pubky-network/pubky-go/crypto"
)

// EncodedLen is the length of a bare z-base-32 encoded public key.
const EncodedLen = 52

// DisplayPrefix is prepended to form the display-only, 57-character form of
// a public key. Never used on the wire or in storage keys.
const DisplayPrefix = "pubky"

var (
	// ErrInvalidLength is returned when a string is not 52 (bare) or 57
	// (pubky-prefixed) characters long.
	ErrInvalidLength = errors.New("pubkey: invalid length")
	// ErrInvalidEncoding is returned when the string does not decode as
	// z-base-32, or decodes to something other than 32 bytes.
	ErrInvalidEncoding = errors.New("pubkey: invalid z-base-32 encoding")
	// ErrNotPubkyURL is returned when a URL does not match the pubky://
	// or https://_pubky.<key> transport conventions.
	ErrNotPubkyURL = errors.New("pubkey: not a pubky transport URL")
)

// Parse validates and decodes a public key from its 52-character bare form
// or its 57-character `pubky`-prefixed display form. Anything else is
// rejected.
func Parse(s string) (crypto.PublicKey, error) {
	switch len(s) {
	case EncodedLen:
		// bare form
	case len(DisplayPrefix) + EncodedLen:
		if !strings.HasPrefix(s, DisplayPrefix) {
			return crypto.PublicKey{}, ErrInvalidLength
		}
		s = s[len(DisplayPrefix):]
	default:
		return crypto.PublicKey{}, ErrInvalidLength
	}

	decoded, err := zbase32.DecodeString(strings.ToLower(s))
	if err != nil {
		return crypto.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(decoded) != crypto.PublicKeySize {
		return crypto.PublicKey{}, ErrInvalidEncoding
	}
	var pk crypto.PublicKey
	copy(pk[:], decoded)
	return pk, nil
}

// Encode renders the bare 52-character transport/storage form.
func Encode(pk crypto.PublicKey) string {
	return zbase32.EncodeToString(pk[:])
}

// Display renders the 57-character, `pubky`-prefixed display form.
func Display(pk crypto.PublicKey) string {
	return DisplayPrefix + Encode(pk)
}

// IsValid reports whether s is a syntactically valid public key in either
// its bare or display form.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// IsPkarrDomain reports whether host names a pubky-TLD: either the bare
// 52-character label itself, or an `_pubky.<key>` label as used by the
// HTTPS-transport convention.
func IsPkarrDomain(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if IsValid(host) {
		return true
	}
	const pubkyLabel = "_pubky."
	if strings.HasPrefix(host, pubkyLabel) {
		return IsValid(strings.TrimPrefix(host, pubkyLabel))
	}
	return false
}

// ExtractPublicKey pulls the public key out of a pubky-TLD host, in either
// of its two forms (bare key, or `_pubky.<key>`).
func ExtractPublicKey(host string) (crypto.PublicKey, error) {
	host = strings.TrimSuffix(host, ".")
	const pubkyLabel = "_pubky."
	if strings.HasPrefix(host, pubkyLabel) {
		host = strings.TrimPrefix(host, pubkyLabel)
	}
	return Parse(host)
}

// ParseURL accepts either `pubky://<pubkey>[/<path>]` or the HTTPS-transport
// equivalent `https://_pubky.<pubkey>[/<path>]` and returns the public key
// and path, treating the two forms as equivalent per spec.
func ParseURL(raw string) (pk crypto.PublicKey, path string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return crypto.PublicKey{}, "", fmt.Errorf("pubkey: parse url: %w", err)
	}
	switch u.Scheme {
	case "pubky":
		pk, err = Parse(u.Host)
		if err != nil {
			return crypto.PublicKey{}, "", fmt.Errorf("%w: %v", ErrNotPubkyURL, err)
		}
	case "https", "http":
		pk, err = ExtractPublicKey(u.Hostname())
		if err != nil {
			return crypto.PublicKey{}, "", fmt.Errorf("%w: %v", ErrNotPubkyURL, err)
		}
	default:
		return crypto.PublicKey{}, "", ErrNotPubkyURL
	}
	return pk, u.Path, nil
}

// Identifier builds the absolute `pubky://<pk>/path` address form - the
// inverse of ParseURL - used wherever an identity-addressed identifier
// rather than a dialable transport URL is wanted, such as storage listing
// results.
func Identifier(pk crypto.PublicKey, path string) string {
	u := url.URL{
		Scheme: "pubky",
		Host:   Encode(pk),
		Path:   path,
	}
	return u.String()
}

// ToTransportURL builds the dialable transport URL for a `pubky://<pk>/path`
// address. If hostport is empty (no PKDNS resolution available, e.g. in
// tests) it falls back to the `_pubky.<pubkey>` convention itself; otherwise
// it dials the resolved host while the caller is responsible for carrying
// the original pubky-TLD in a `pubky-host` header (see client package) so
// the homeserver can recover the intended identity.
func ToTransportURL(pk crypto.PublicKey, hostport, path string) string {
	host := hostport
	if host == "" {
		host = "_pubky." + Encode(pk)
	}
	u := url.URL{
		Scheme: "https",
		Host:   host,
		Path:   path,
	}
	return u.String()
}
