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

package homeserver

import (
	"net/http"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/pubkey"
)

// pubkyHostHeader carries the original pubky-TLD when a request has been
// transport-rewritten to the homeserver's dialable host (spec.md §4.6 /
// §6.1's addressing note): the client still targets `_pubky.<pubkey>`, but
// after resolution the wire request lands on the homeserver's real host,
// so this header recovers the intended identity.
const pubkyHostHeader = "pubky-host"

// targetUser resolves which user's namespace a request addresses: the
// Host header if it is itself a pubky-TLD, otherwise the pubky-host
// header set by a transport-rewritten client.
func targetUser(r *http.Request) (crypto.PublicKey, error) {
	if pubkey.IsPkarrDomain(r.Host) {
		return pubkey.ExtractPublicKey(r.Host)
	}
	if h := r.Header.Get(pubkyHostHeader); h != "" {
		return pubkey.ExtractPublicKey(h)
	}
	return crypto.PublicKey{}, apperr.Request(http.StatusBadRequest, "no pubky-TLD host or pubky-host header")
}
