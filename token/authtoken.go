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

// Package token implements AuthToken (signed, replay-resistant capability
// grants exchanged between a signer and an app or homeserver) and
// Attestation (the compact, audience-bound form presented directly at the
// homeserver boundary).
package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/pubky-network/pubky-go/cap"
	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
)

// CurrentVersion is the only AuthToken wire version this package produces
// or accepts.
const CurrentVersion uint8 = 0

// TimeInterval is the acceptance window half-width and the replay-set
// bucket width (spec.md §4.4).
const TimeInterval = 30 * time.Second

const timeIntervalMicros = int64(TimeInterval / time.Microsecond)

var (
	ErrInvalidSignature   = errors.New("token: invalid signature")
	ErrUnknownVersion     = errors.New("token: unknown version")
	ErrTimestampOutOfRange = errors.New("token: timestamp out of acceptance window")
	ErrAlreadyUsed        = errors.New("token: already used")
	ErrTruncated          = errors.New("token: truncated wire form")
)

// AuthToken is signed proof of ownership of a keypair, binding the signer
// to a point in time and a capability set.
type AuthToken struct {
	Version      uint8
	Signature    crypto.Signature
	Signer       crypto.PublicKey
	Timestamp    ptime.Timestamp
	Capabilities cap.Capabilities
}

// New constructs and signs a fresh AuthToken for the given capabilities,
// timestamped now.
func New(signer crypto.Keypair, capabilities cap.Capabilities) AuthToken {
	t := AuthToken{
		Version:      CurrentVersion,
		Signer:       signer.PublicKey(),
		Timestamp:    ptime.Now(),
		Capabilities: capabilities,
	}
	t.Signature = signer.Sign(t.signable())
	return t
}

// signable returns the canonical byte layout that is signed:
// version || signer || timestamp || capabilities.
func (t AuthToken) signable() []byte {
	capsBytes := []byte(t.Capabilities.String())
	buf := make([]byte, 0, 1+crypto.PublicKeySize+8+len(capsBytes))
	buf = append(buf, t.Version)
	buf = append(buf, t.Signer[:]...)
	ts := t.Timestamp.Bytes()
	buf = append(buf, ts[:]...)
	buf = append(buf, capsBytes...)
	return buf
}

// Serialize renders the deterministic wire form: a fixed-size prefix
// (version, signature, signer, timestamp) followed by a 2-byte big-endian
// length and the capability list text.
func (t AuthToken) Serialize() []byte {
	capsBytes := []byte(t.Capabilities.String())
	out := make([]byte, 0, 1+crypto.SignatureSize+crypto.PublicKeySize+8+2+len(capsBytes))
	out = append(out, t.Version)
	out = append(out, t.Signature[:]...)
	out = append(out, t.Signer[:]...)
	ts := t.Timestamp.Bytes()
	out = append(out, ts[:]...)
	var capsLen [2]byte
	binary.BigEndian.PutUint16(capsLen[:], uint16(len(capsBytes)))
	out = append(out, capsLen[:]...)
	out = append(out, capsBytes...)
	return out
}

const fixedPrefixLen = 1 + crypto.SignatureSize + crypto.PublicKeySize + 8 + 2

// Deserialize parses the wire form produced by Serialize. It does not
// verify the signature; call Verify (or Verifier.Verify) for that.
func Deserialize(b []byte) (AuthToken, error) {
	if len(b) < fixedPrefixLen {
		return AuthToken{}, ErrTruncated
	}
	var t AuthToken
	off := 0
	t.Version = b[off]
	off++
	copy(t.Signature[:], b[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	copy(t.Signer[:], b[off:off+crypto.PublicKeySize])
	off += crypto.PublicKeySize
	t.Timestamp = ptime.FromBytes(b[off : off+8])
	off += 8
	capsLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b)-off < capsLen {
		return AuthToken{}, ErrTruncated
	}
	caps, err := cap.ParseCapabilities(string(b[off : off+capsLen]))
	if err != nil {
		return AuthToken{}, fmt.Errorf("token: parse capabilities: %w", err)
	}
	t.Capabilities = caps
	return t, nil
}

// VerifySignature checks only the cryptographic signature and version,
// without replay or freshness checks.
func (t AuthToken) VerifySignature() error {
	if t.Version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, t.Version)
	}
	if !crypto.Verify(t.Signer, t.signable(), t.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// Hash returns the Blake3 hash of the token's wire form, used as the
// replay-set key.
func (t AuthToken) Hash() crypto.Hash {
	return crypto.HashBytes(t.Serialize())
}

// Verifier enforces the acceptance window and replay protection described
// in spec.md §4.4: a token is accepted once per (time-bucket, token-hash),
// tracked in a bounded sorted set that is garbage collected on every call.
type Verifier struct {
	replay *replaySet
	now    func() ptime.Timestamp
}

// NewVerifier creates a Verifier. now is only overridden in tests.
func NewVerifier() *Verifier {
	return &Verifier{replay: newReplaySet(), now: ptime.Now}
}

// Verify checks signature validity, the ±TimeInterval acceptance window
// around now, and replay protection.
func (v *Verifier) Verify(t AuthToken) error {
	if err := t.VerifySignature(); err != nil {
		return err
	}

	now := v.now()
	if t.Timestamp.Sub(now) > TimeInterval || now.Sub(t.Timestamp) > TimeInterval {
		return ErrTimestampOutOfRange
	}

	bucket := int64(t.Timestamp) / timeIntervalMicros
	if !v.replay.checkAndRemember(bucket, t.Hash(), int64(now)/timeIntervalMicros) {
		return ErrAlreadyUsed
	}
	return nil
}
