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

package main

import (
	"errors"
	"os"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/pubkey"
)

// loadOrCreateIdentity reads the homeserver's own keypair from path,
// generating and persisting a fresh one on first run.
func loadOrCreateIdentity(path string) (crypto.Keypair, error) {
	kp, err := pubkey.ParseKeyFile(path)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return crypto.Keypair{}, err
	}

	applog.Info.Infof("identity: no key file at %s, generating a new identity", path)
	kp, err = crypto.GenerateKeypair()
	if err != nil {
		return crypto.Keypair{}, err
	}
	if err := pubkey.WriteKeyFile(path, kp); err != nil {
		return crypto.Keypair{}, err
	}
	applog.Info.Infof("identity: wrote new key file %s for %s", path, pubkey.Encode(kp.PublicKey()))
	return kp, nil
}
