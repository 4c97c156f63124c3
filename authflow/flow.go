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

// Package authflow implements the pubkyauth:// cross-device handshake
// (spec.md §4.11): a keyless requester displays a deep link naming a
// relay channel, a signer holding the keypair resolves that link and posts
// back an encrypted, signed AuthToken, and the requester decrypts and
// verifies it to complete signin without ever holding the secret key
// itself. Both halves speak the relay package's GET/POST /link/{id}
// surface as plain HTTP, the same way the client package never imports
// homeserver directly.
package authflow

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"

	"github.com/pubky-network/pubky-go/cap"
	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/token"
)

// DefaultRelay is the conventional base relay URL used when a caller
// supplies none, mirroring pubky-client's DEFAULT_HTTP_RELAY.
const DefaultRelay = "https://httprelay.pubky.app/link/"

const clientSecretSize = 32

// Flow orchestrates the requester (keyless app) side of the handshake.
// Build one with New, display PubkyAuthURL (as a QR code or deep link),
// then block on WaitForResponse.
type Flow struct {
	clientSecret    [clientSecretSize]byte
	pubkyAuthURL    string
	relayChannelURL string
}

// New picks a fresh client secret, derives the relay channel id from its
// hash, and builds the pubkyauth:// URL a signer will resolve. relay is the
// base relay URL (DefaultRelay when empty); capabilities are what the
// returned AuthToken must grant.
func New(relay string, capabilities cap.Capabilities) (*Flow, error) {
	if relay == "" {
		relay = DefaultRelay
	}

	secret, err := crypto.RandomBytes(clientSecretSize)
	if err != nil {
		return nil, apperr.Build("failed to generate client secret", err)
	}
	var clientSecret [clientSecretSize]byte
	copy(clientSecret[:], secret)

	channelURL, err := deriveChannelURL(relay, clientSecret)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("caps", capabilities.String())
	q.Set("secret", encodeSecret(clientSecret))
	q.Set("relay", relay)

	return &Flow{
		clientSecret:    clientSecret,
		pubkyAuthURL:    "pubkyauth:///?" + q.Encode(),
		relayChannelURL: channelURL,
	}, nil
}

// PubkyAuthURL is the deep link (or QR payload) to present to the signing
// device.
func (f *Flow) PubkyAuthURL() string { return f.pubkyAuthURL }

// WaitForResponse polls the relay channel until the signer posts an
// encrypted AuthToken or ctx is done. A relay-side idle timeout (surfaced
// as 504 Gateway Timeout by relay.handleGet) is not an error here: it just
// means no one has posted yet, so polling continues.
func (f *Flow) WaitForResponse(ctx context.Context, httpClient *http.Client) (token.AuthToken, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	for {
		t, retry, err := f.pollOnce(ctx, httpClient)
		if err != nil {
			return token.AuthToken{}, err
		}
		if !retry {
			return t, nil
		}
		if err := ctx.Err(); err != nil {
			return token.AuthToken{}, apperr.Build("auth flow canceled while waiting for response", err)
		}
	}
}

func (f *Flow) pollOnce(ctx context.Context, httpClient *http.Client) (t token.AuthToken, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.relayChannelURL, nil)
	if err != nil {
		return token.AuthToken{}, false, apperr.Build("failed to construct relay poll request", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if isTimeout(err, &netErr) {
			return token.AuthToken{}, true, nil
		}
		return token.AuthToken{}, false, apperr.Build("relay poll failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGatewayTimeout {
		return token.AuthToken{}, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return token.AuthToken{}, false, apperr.Request(resp.StatusCode, string(body))
	}

	encrypted, err := io.ReadAll(resp.Body)
	if err != nil {
		return token.AuthToken{}, false, apperr.Build("failed to read relay response", err)
	}

	plaintext, err := crypto.Decrypt(encrypted, f.clientSecret[:])
	if err != nil {
		return token.AuthToken{}, false, apperr.Auth("failed to decrypt auth token", err)
	}
	parsed, err := token.Deserialize(plaintext)
	if err != nil {
		return token.AuthToken{}, false, apperr.Parse("failed to parse auth token", err)
	}
	if err := parsed.VerifySignature(); err != nil {
		return token.AuthToken{}, false, apperr.Auth("auth token signature invalid", err)
	}
	return parsed, false, nil
}

func isTimeout(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return ne.Timeout()
}

// deriveChannelURL appends base64url(hash(clientSecret)) as the final path
// segment of relay, the channel id both sides compute independently so
// neither has to transmit it.
func deriveChannelURL(relay string, clientSecret [clientSecretSize]byte) (string, error) {
	u, err := url.Parse(relay)
	if err != nil {
		return "", apperr.Parse("failed to parse relay url", err)
	}
	u.Path = path.Join(u.Path, channelID(clientSecret))
	return u.String(), nil
}

func channelID(clientSecret [clientSecretSize]byte) string {
	h := crypto.HashBytes(clientSecret[:])
	return base64.RawURLEncoding.EncodeToString(h[:])
}

func encodeSecret(clientSecret [clientSecretSize]byte) string {
	return base64.RawURLEncoding.EncodeToString(clientSecret[:])
}

// parsedPubkyAuthURL holds what a signer needs to recover from a
// pubkyauth:// URL: the requested capabilities and the channel to post to.
type parsedPubkyAuthURL struct {
	capabilities    cap.Capabilities
	clientSecret    [clientSecretSize]byte
	relayChannelURL string
}

// parsePubkyAuthURL is the signer-side inverse of New: it recovers the
// client secret and requested capabilities, and independently re-derives
// the same relay channel URL the requester computed.
func parsePubkyAuthURL(raw string) (parsedPubkyAuthURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return parsedPubkyAuthURL{}, apperr.Parse("failed to parse pubkyauth url", err)
	}
	if u.Scheme != "pubkyauth" {
		return parsedPubkyAuthURL{}, apperr.Parse(fmt.Sprintf("not a pubkyauth url: %q", raw), nil)
	}

	q := u.Query()
	capabilities, err := cap.ParseCapabilities(q.Get("caps"))
	if err != nil {
		return parsedPubkyAuthURL{}, apperr.Parse("failed to parse requested capabilities", err)
	}

	secretBytes, err := base64.RawURLEncoding.DecodeString(q.Get("secret"))
	if err != nil || len(secretBytes) != clientSecretSize {
		return parsedPubkyAuthURL{}, apperr.Parse("malformed client secret", err)
	}
	var clientSecret [clientSecretSize]byte
	copy(clientSecret[:], secretBytes)

	relay := q.Get("relay")
	if relay == "" {
		return parsedPubkyAuthURL{}, apperr.Parse("missing relay parameter", nil)
	}
	channelURL, err := deriveChannelURL(relay, clientSecret)
	if err != nil {
		return parsedPubkyAuthURL{}, err
	}

	return parsedPubkyAuthURL{
		capabilities:    capabilities,
		clientSecret:    clientSecret,
		relayChannelURL: channelURL,
	}, nil
}
