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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/crypto"
)

func TestWriteKeyFileThenParseRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.pkarr")
	require.NoError(t, WriteKeyFile(path, kp))

	parsed, err := ParseKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey(), parsed.PublicKey())
	require.Equal(t, kp.SecretKey(), parsed.SecretKey())
}

func TestWriteKeyFileRefusesToOverwrite(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.pkarr")
	require.NoError(t, WriteKeyFile(path, kp))

	other, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	require.Error(t, WriteKeyFile(path, other))

	parsed, err := ParseKeyFile(path)
	require.NoError(t, err)
	require.Equal(t, kp.PublicKey(), parsed.PublicKey())
}

func TestParseKeyFileRejectsGarbage(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "empty.pkarr")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))
	_, err := ParseKeyFile(path)
	require.Error(t, err)

	path = filepath.Join(dir, "short.pkarr")
	require.NoError(t, os.WriteFile(path, []byte("too-short"), 0o600))
	_, err = ParseKeyFile(path)
	require.Error(t, err)

	path = filepath.Join(dir, "missing.pkarr")
	_, err = ParseKeyFile(path)
	require.Error(t, err)
}
