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

package session

import (
	"net"
	"net/http"
	"strings"

	"github.com/pubky-network/pubky-go/crypto"
)

// NewCookie builds the Set-Cookie value for a session, applying the
// attribute rules from spec.md §4.7/§6.3: over a secure host (an FQDN
// with a dot, or a pkarr z-base32 TLD) the cookie is
// Secure; SameSite=None; HttpOnly; Path=/. Over a bare IP or localhost,
// Secure and SameSite=None are omitted to allow local development over
// plain HTTP.
func NewCookie(host string, userPubkey crypto.PublicKey, secret string) *http.Cookie {
	c := &http.Cookie{
		Name:     CookieName(userPubkey),
		Value:    secret,
		Path:     "/",
		HttpOnly: true,
	}
	if isSecureHost(host) {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// isSecureHost reports whether host (no port) should receive the
// Secure/SameSite=None cookie attributes: anything that is not a bare IP
// address or "localhost".
func isSecureHost(host string) bool {
	h := host
	if i := strings.LastIndex(h, ":"); i >= 0 && !strings.Contains(h[i:], "]") {
		// strip an optional port, but not a literal IPv6 address's colons
		if net.ParseIP(h) == nil {
			h = h[:i]
		}
	}
	h = strings.TrimSuffix(h, ".")
	if h == "localhost" {
		return false
	}
	if net.ParseIP(h) != nil {
		return false
	}
	return true
}
