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

// Package crypto wraps the handful of primitives the rest of pubky-go builds
// on: Ed25519 signatures, Blake3 hashing, and authenticated symmetric
// encryption for the rendezvous handshake.
package crypto

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// PublicKeySize is the length in bytes of an Ed25519 public key.
	PublicKeySize = ed25519.PublicKeySize
	// SecretKeySize is the length in bytes of an Ed25519 seed (the
	// portable form of a private key; see SecretKey).
	SecretKeySize = ed25519.SeedSize
	// SignatureSize is the length in bytes of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
	// HashSize is the length in bytes of a Blake3 digest.
	HashSize = 32

	secretboxKeySize   = 32
	secretboxNonceSize = 24
	secretboxOverhead  = secretbox.Overhead + secretboxNonceSize
)

// PublicKey is a 32-byte Ed25519 verification key.
type PublicKey [PublicKeySize]byte

// SecretKey is a 32-byte Ed25519 seed. Keypair derives the full signing key
// and public key from it on demand so that only the seed needs to be kept
// around (and persisted to a `.pkarr` file; see pubkey.ParseKeyFile).
type SecretKey [SecretKeySize]byte

// Signature is a 64-byte Ed25519 signature.
type Signature [SignatureSize]byte

// Hash is a 32-byte Blake3 digest.
type Hash [HashSize]byte

// Keypair is a signer: a secret key plus its derived public key.
type Keypair struct {
	secret SecretKey
	public PublicKey
	priv   ed25519.PrivateKey
}

// GenerateKeypair creates a new random Keypair.
func GenerateKeypair() (Keypair, error) {
	var seed SecretKey
	if _, err := cryptorand.Read(seed[:]); err != nil {
		return Keypair{}, fmt.Errorf("crypto: generate keypair: %w", err)
	}
	return KeypairFromSecretKey(seed), nil
}

// KeypairFromSecretKey derives a Keypair from an existing 32-byte seed.
func KeypairFromSecretKey(secret SecretKey) Keypair {
	priv := ed25519.NewKeyFromSeed(secret[:])
	var pub PublicKey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return Keypair{secret: secret, public: pub, priv: priv}
}

// PublicKey returns the keypair's public key.
func (k Keypair) PublicKey() PublicKey { return k.public }

// SecretKey returns the keypair's 32-byte seed.
func (k Keypair) SecretKey() SecretKey { return k.secret }

// Sign signs msg and returns the signature.
func (k Keypair) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.priv, msg))
	return sig
}

// Verify reports whether sig is a valid signature of msg by pub.
func Verify(pub PublicKey, msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig[:])
}

// HashBytes returns the Blake3 digest of data.
func HashBytes(data []byte) Hash {
	h := blake3.New()
	_, _ = h.Write(data)
	var out Hash
	h.Sum(out[:0])
	return out
}

// RandomHash returns 32 cryptographically random bytes typed as Hash, used
// as a replay-set filler when no opaque token is presented alongside an
// Attestation.
func RandomHash() (Hash, error) {
	var h Hash
	if _, err := cryptorand.Read(h[:]); err != nil {
		return Hash{}, fmt.Errorf("crypto: random hash: %w", err)
	}
	return h, nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := cryptorand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: random bytes: %w", err)
	}
	return b, nil
}

// ErrDecrypt is returned for any authentication failure or tamper detected
// during Decrypt: wrong key, truncated ciphertext, or a corrupted MAC. The
// spec deliberately folds all of these into one opaque error so that a
// caller cannot distinguish "wrong key" from "tampered" (a timing/oracle
// concern for the handshake in authflow).
var ErrDecrypt = errors.New("crypto: decryption failed")

// Encrypt authenticates and encrypts plaintext under the given 32-byte
// shared secret. The returned ciphertext is self-delimited: a random
// 24-byte nonce is prepended, followed by the secretbox-sealed payload.
func Encrypt(plaintext, sharedSecret []byte) ([]byte, error) {
	key, err := secretboxKey(sharedSecret)
	if err != nil {
		return nil, err
	}
	var nonce [secretboxNonceSize]byte
	if _, err := cryptorand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("crypto: encrypt: %w", err)
	}
	out := make([]byte, 0, secretboxNonceSize+len(plaintext)+secretbox.Overhead)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, key), nil
}

// Decrypt reverses Encrypt. Any tamper or key mismatch yields ErrDecrypt.
func Decrypt(ciphertext, sharedSecret []byte) ([]byte, error) {
	if len(ciphertext) < secretboxOverhead {
		return nil, ErrDecrypt
	}
	key, err := secretboxKey(sharedSecret)
	if err != nil {
		return nil, err
	}
	var nonce [secretboxNonceSize]byte
	copy(nonce[:], ciphertext[:secretboxNonceSize])
	plaintext, ok := secretbox.Open(nil, ciphertext[secretboxNonceSize:], &nonce, key)
	if !ok {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func secretboxKey(sharedSecret []byte) (*[secretboxKeySize]byte, error) {
	if len(sharedSecret) != secretboxKeySize {
		return nil, fmt.Errorf("crypto: shared secret must be %d bytes, got %d", secretboxKeySize, len(sharedSecret))
	}
	var key [secretboxKeySize]byte
	copy(key[:], sharedSecret)
	return &key, nil
}
