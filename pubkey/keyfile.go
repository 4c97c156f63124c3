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

package pubkey

import (
	"fmt"
	"os"
	"strings"

	"github.com/tv42/zbase32"

	"github.com/pubky-network/pubky-go/crypto"
)

// ParseKeyFile reads a homeserver's own identity seed from a `.pkarr` file:
// the z-base-32 encoding of the 32-byte Ed25519 seed, as produced by
// WriteKeyFile. This is the long-lived keypair a homeserver signs its own
// PKDNS packet with and that clients verify Attestation audiences against
// (spec.md §4.10/§4.11), kept out of the SQL database so it can be rotated
// or backed up independently of it.
func ParseKeyFile(path string) (crypto.Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return crypto.Keypair{}, fmt.Errorf("pubkey: read key file %s: %w", path, err)
	}
	decoded, err := zbase32.DecodeString(strings.ToLower(strings.TrimSpace(string(raw))))
	if err != nil {
		return crypto.Keypair{}, fmt.Errorf("pubkey: parse key file %s: %w", path, err)
	}
	if len(decoded) != crypto.SecretKeySize {
		return crypto.Keypair{}, fmt.Errorf("pubkey: key file %s: %w", path, ErrInvalidEncoding)
	}
	var seed crypto.SecretKey
	copy(seed[:], decoded)
	return crypto.KeypairFromSecretKey(seed), nil
}

// WriteKeyFile persists k's seed to path in the same z-base-32 form
// ParseKeyFile reads, creating the file if absent and refusing to
// overwrite an existing one (callers that intend to rotate must remove
// the old file first, an explicit action rather than an implicit one).
func WriteKeyFile(path string, k crypto.Keypair) error {
	secret := k.SecretKey()
	encoded := zbase32.EncodeToString(secret[:])
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("pubkey: write key file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(encoded); err != nil {
		return fmt.Errorf("pubkey: write key file %s: %w", path, err)
	}
	return nil
}
