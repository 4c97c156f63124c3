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

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
)

// MaxAttestationAge bounds clock skew for Attestation verification, both
// into the past and the future (spec.md §4.4).
const MaxAttestationAge = 60 * time.Second

// NamespaceTag distinguishes attestation signatures from other uses of the
// signer's key; it is an 8-byte constant baked into the signed tail.
var NamespaceTag = [8]byte{'p', 'k', 'a', 't', 's', 't', '0', '1'}

const (
	bearerLen  = crypto.PublicKeySize + crypto.SignatureSize + 8 + 8 + crypto.PublicKeySize
	forTokenLen = bearerLen + crypto.HashSize
)

var (
	ErrAttestationLength  = errors.New("token: invalid attestation length")
	ErrWrongAudience      = errors.New("token: attestation audience mismatch")
	ErrAttestationExpired = errors.New("token: attestation outside clock-skew window")
)

// Attestation is the compact, audience-bound alternative to AuthToken
// presented directly at the homeserver boundary: signer || signature ||
// namespace_tag || timestamp || audience || [token_hash].
type Attestation struct {
	Signer    crypto.PublicKey
	Signature crypto.Signature
	Timestamp ptime.Timestamp
	Audience  crypto.PublicKey
	TokenHash *crypto.Hash // nil for the bearer variant
}

// NewBearer builds a bearer Attestation: proof that signer controls its key
// and intends audience (the homeserver), with no opaque token bound.
func NewBearer(signer crypto.Keypair, audience crypto.PublicKey) Attestation {
	return newAttestation(signer, audience, nil)
}

// NewForToken builds an Attestation bound to the Blake3 hash of an opaque
// access token presented out of band (e.g. alongside an Authorization
// header carrying that token verbatim).
func NewForToken(signer crypto.Keypair, audience crypto.PublicKey, opaqueToken []byte) Attestation {
	h := crypto.HashBytes(opaqueToken)
	return newAttestation(signer, audience, &h)
}

func newAttestation(signer crypto.Keypair, audience crypto.PublicKey, tokenHash *crypto.Hash) Attestation {
	a := Attestation{
		Signer:    signer.PublicKey(),
		Timestamp: ptime.Now(),
		Audience:  audience,
		TokenHash: tokenHash,
	}
	a.Signature = signer.Sign(a.signableTail())
	return a
}

// signableTail is namespace_tag || timestamp || audience || [token_hash]:
// the portion of the wire form after signer||signature that gets signed.
func (a Attestation) signableTail() []byte {
	ts := a.Timestamp.Bytes()
	buf := make([]byte, 0, forTokenLen-crypto.PublicKeySize-crypto.SignatureSize)
	buf = append(buf, NamespaceTag[:]...)
	buf = append(buf, ts[:]...)
	buf = append(buf, a.Audience[:]...)
	if a.TokenHash != nil {
		buf = append(buf, a.TokenHash[:]...)
	}
	return buf
}

// Serialize renders the fixed-layout wire form: 144 bytes for a bearer
// attestation, 176 bytes when bound to a token hash.
func (a Attestation) Serialize() []byte {
	out := make([]byte, 0, forTokenLen)
	out = append(out, a.Signer[:]...)
	out = append(out, a.Signature[:]...)
	out = append(out, a.signableTail()...)
	return out
}

// ParseAttestation decodes the fixed wire form. It does not perform
// audience/skew/signature verification; call Verify for that.
func ParseAttestation(b []byte) (Attestation, error) {
	var a Attestation
	switch len(b) {
	case bearerLen:
	case forTokenLen:
	default:
		return Attestation{}, fmt.Errorf("%w: got %d bytes", ErrAttestationLength, len(b))
	}

	off := 0
	copy(a.Signer[:], b[off:off+crypto.PublicKeySize])
	off += crypto.PublicKeySize
	copy(a.Signature[:], b[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	off += len(NamespaceTag) // namespace tag is a constant, not stored on the struct
	a.Timestamp = ptime.FromBytes(b[off : off+8])
	off += 8
	copy(a.Audience[:], b[off:off+crypto.PublicKeySize])
	off += crypto.PublicKeySize
	if len(b) == forTokenLen {
		var h crypto.Hash
		copy(h[:], b[off:off+crypto.HashSize])
		a.TokenHash = &h
	}
	return a, nil
}

// Verify checks length (implicitly, via the caller having used
// ParseAttestation), audience equality against this homeserver's public
// key, clock skew, and the signature over the tail.
func (a Attestation) Verify(homeserverKey crypto.PublicKey, now ptime.Timestamp) error {
	if a.Audience != homeserverKey {
		return ErrWrongAudience
	}
	skew := now.Sub(a.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxAttestationAge {
		return ErrAttestationExpired
	}
	if !crypto.Verify(a.Signer, a.signableTail(), a.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
