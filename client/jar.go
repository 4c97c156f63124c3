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

package client

import (
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/session"
)

// cookieJar splits session storage in two, grounded on pubky-client's
// internal/cookies.rs: a pubky session is keyed by the user's identity, not
// by whichever transport host currently serves it (a homeserver migration
// would otherwise orphan the cookie in a normal per-host jar), while every
// other cookie goes through a standard net/http jar keyed by request URL.
// The standard library's cookiejar is used for the ICANN-domain half since
// none of the examples carry a client-side cookie-jar library; only the
// identity-keyed half is novel enough to need its own code.
type cookieJar struct {
	mu       sync.RWMutex
	sessions map[crypto.PublicKey]string
	normal   *cookiejar.Jar
}

func newCookieJar() *cookieJar {
	normal, _ := cookiejar.New(nil)
	return &cookieJar{sessions: make(map[crypto.PublicKey]string), normal: normal}
}

// sessionCookie returns the stored session secret for pk, if any.
func (j *cookieJar) sessionCookie(pk crypto.PublicKey) (string, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	v, ok := j.sessions[pk]
	return v, ok
}

// storeSessionFrom scans resp's Set-Cookie headers for pk's session cookie
// and remembers its secret, identity-keyed rather than host-keyed.
func (j *cookieJar) storeSessionFrom(pk crypto.PublicKey, resp *http.Response) {
	name := session.CookieName(pk)
	for _, c := range resp.Cookies() {
		if c.Name == name {
			j.mu.Lock()
			j.sessions[pk] = c.Value
			j.mu.Unlock()
			return
		}
	}
}

// deleteSession implements the explicit client-initiated signout the Rust
// jar calls delete_session_after_signout: a DELETE /session response may
// carry no Set-Cookie header at all, so the client must forget the secret
// itself rather than waiting for one.
func (j *cookieJar) deleteSession(pk crypto.PublicKey) {
	j.mu.Lock()
	delete(j.sessions, pk)
	j.mu.Unlock()
}
