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

package authflow

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/token"
)

// SendAuthToken is the signer (keyholder) side of the handshake: it parses
// pubkyAuthURL, signs a fresh AuthToken for the requested capabilities with
// signer's own keypair, encrypts it under the client secret recovered from
// the URL, and posts it to the relay channel the requester is waiting on.
func SendAuthToken(ctx context.Context, httpClient *http.Client, signer crypto.Keypair, pubkyAuthURL string) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	parsed, err := parsePubkyAuthURL(pubkyAuthURL)
	if err != nil {
		return err
	}

	t := token.New(signer, parsed.capabilities)
	encrypted, err := crypto.Encrypt(t.Serialize(), parsed.clientSecret[:])
	if err != nil {
		return apperr.Build("failed to encrypt auth token", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsed.relayChannelURL, bytes.NewReader(encrypted))
	if err != nil {
		return apperr.Build("failed to construct relay post request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return apperr.Build("relay post failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return apperr.Request(resp.StatusCode, string(body))
	}
	return nil
}
