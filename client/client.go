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

// Package client is the pubky-network request facade: it resolves a
// pubky://<pubkey>/path address to its current homeserver over PKDNS,
// carries the identity-keyed session cookie across homeserver migrations,
// and exposes the PUT/GET/DELETE/LIST object operations plus signup/signin
// (spec.md §4.10), grounded on pubky-client's NativeClient and CookieJar.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pubky-network/pubky-go/cap"
	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/pkdns"
	"github.com/pubky-network/pubky-go/pubkey"
	"github.com/pubky-network/pubky-go/session"
	"github.com/pubky-network/pubky-go/token"
)

// pubkyHostHeader must match homeserver.pubkyHostHeader: the transport URL's
// Host is the resolved, dialable address, so this header is how the
// homeserver recovers which identity's namespace the request targets.
const pubkyHostHeader = "pubky-host"

// Client issues requests against pubky:// addresses, resolving each one's
// homeserver fresh (so a migration between requests is transparent) and
// maintaining cookies across both pubky-TLD and ordinary ICANN hosts.
type Client struct {
	HTTP  *http.Client
	PKDNS *pkdns.Client
	jar   *cookieJar
}

// New builds a Client. pkdnsClient resolves pubky:// addresses to transport
// hosts; pass nil only in tests that address a fixed host directly.
func New(pkdnsClient *pkdns.Client) *Client {
	return &Client{HTTP: &http.Client{}, PKDNS: pkdnsClient, jar: newCookieJar()}
}

// Signup implements POST /signup (spec.md §4.10): sign and send a fresh
// AuthToken for capabilities to homeserver, claiming signupToken when the
// homeserver requires one ("" otherwise).
func (c *Client) Signup(ctx context.Context, homeserver crypto.PublicKey, signer crypto.Keypair, capabilities cap.Capabilities, signupToken string) error {
	query := ""
	if signupToken != "" {
		query = url.Values{"signup_token": {signupToken}}.Encode()
	}
	return c.authRequest(ctx, homeserver, signer, capabilities, "/signup", query)
}

// Signin implements POST /signin: as Signup, against an existing account.
func (c *Client) Signin(ctx context.Context, homeserver crypto.PublicKey, signer crypto.Keypair, capabilities cap.Capabilities) error {
	return c.authRequest(ctx, homeserver, signer, capabilities, "/signin", "")
}

// SigninWithToken implements POST /signin with an already-signed AuthToken
// rather than one built from a locally-held Keypair: the completion step of
// the keyless pubkyauth:// handshake (see the authflow package), where the
// token was signed by a remote signer and merely carried back over a relay.
// The request is addressed to the token's own signer, since that identity
// must already resolve to the homeserver the signin is for.
func (c *Client) SigninWithToken(ctx context.Context, t token.AuthToken) error {
	resp, err := c.request(ctx, http.MethodPost, t.Signer, "/signin", "", bytes.NewReader(t.Serialize()), "application/octet-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) authRequest(ctx context.Context, homeserver crypto.PublicKey, signer crypto.Keypair, capabilities cap.Capabilities, path, query string) error {
	t := token.New(signer, capabilities)
	resp, err := c.request(ctx, http.MethodPost, homeserver, path, query, bytes.NewReader(t.Serialize()), "application/octet-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Session fetches the capability text for the caller's own session
// (GET /session), resolved against the user's own published homeserver.
func (c *Client) Session(ctx context.Context, user crypto.PublicKey) (cap.Capabilities, error) {
	resp, err := c.request(ctx, http.MethodGet, user, "/session", "", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Build("failed to read session response", err)
	}
	return cap.ParseCapabilities(string(body))
}

// Signout implements DELETE /session and forgets the local session
// cookie immediately, since a signout response may carry no Set-Cookie
// header to expire it for us (the same gap pubky-client's
// delete_session_after_signout closes).
func (c *Client) Signout(ctx context.Context, user crypto.PublicKey) error {
	resp, err := c.request(ctx, http.MethodDelete, user, "/session", "", nil, "")
	c.jar.deleteSession(user)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// Put implements PUT <pubky://user/path> (spec.md §6.1).
func (c *Client) Put(ctx context.Context, user crypto.PublicKey, path string, body io.Reader, contentType string) error {
	resp, err := c.request(ctx, http.MethodPut, user, path, "", body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// PutJSON marshals v and PUTs it with Content-Type application/json.
func (c *Client) PutJSON(ctx context.Context, user crypto.PublicKey, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return apperr.Build("failed to marshal json body", err)
	}
	return c.Put(ctx, user, path, bytes.NewReader(body), "application/json")
}

// Get fetches an object's body and content type. The caller must close the
// returned ReadCloser.
func (c *Client) Get(ctx context.Context, user crypto.PublicKey, path string) (io.ReadCloser, string, error) {
	resp, err := c.request(ctx, http.MethodGet, user, path, "", nil, "")
	if err != nil {
		return nil, "", err
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, "", err
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// GetJSON fetches and unmarshals an object's body into v.
func (c *Client) GetJSON(ctx context.Context, user crypto.PublicKey, path string, v any) error {
	body, _, err := c.Get(ctx, user, path)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(v)
}

// Delete implements DELETE <pubky://user/path>.
func (c *Client) Delete(ctx context.Context, user crypto.PublicKey, path string) error {
	resp, err := c.request(ctx, http.MethodDelete, user, path, "", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// ListOptions mirrors storage.ListOptions for the LIST query string
// (spec.md §4.8).
type ListOptions struct {
	Reverse bool
	Shallow bool
	Limit   int
	Cursor  string
}

// List implements LIST <pubky://user/prefix/> (a GET on a path ending in
// "/"), returning the pubky:// identifiers of every entry under prefix.
func (c *Client) List(ctx context.Context, user crypto.PublicKey, prefix string, opts ListOptions) ([]string, error) {
	q := url.Values{}
	if opts.Reverse {
		q.Set("reverse", "true")
	}
	if opts.Shallow {
		q.Set("shallow", "true")
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		q.Set("cursor", opts.Cursor)
	}
	resp, err := c.request(ctx, http.MethodGet, user, prefix, q.Encode(), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var ids []string
	if err := json.NewDecoder(resp.Body).Decode(&ids); err != nil {
		return nil, apperr.Build("failed to decode listing", err)
	}
	return ids, nil
}

// request resolves user's current homeserver, builds a transport request
// for path, attaches the identity-keyed session cookie if one is held plus
// whatever the standard jar holds for the transport URL, and stores the
// response's cookies back: the session cookie identity-keyed, every other
// cookie in the standard jar.
func (c *Client) request(ctx context.Context, method string, user crypto.PublicKey, path, query string, body io.Reader, contentType string) (*http.Response, error) {
	hostport, err := c.resolveHostport(ctx, user)
	if err != nil {
		return nil, err
	}

	rawURL := pubkey.ToTransportURL(user, hostport, path)
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, apperr.Build("failed to construct request", err)
	}
	req.URL.RawQuery = query
	req.Header.Set(pubkyHostHeader, "_pubky."+pubkey.Encode(user))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if secret, ok := c.jar.sessionCookie(user); ok {
		req.AddCookie(&http.Cookie{Name: session.CookieName(user), Value: secret})
	}
	for _, ck := range c.jar.normal.Cookies(req.URL) {
		req.AddCookie(ck)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Build("request failed", err)
	}
	c.jar.storeSessionFrom(user, resp)
	var other []*http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name != session.CookieName(user) {
			other = append(other, ck)
		}
	}
	c.jar.normal.SetCookies(req.URL, other)
	return resp, nil
}

// PublishHomeserver publishes signer's own `_pubky` PKDNS record pointing at
// host/port: the step a client performs once after choosing a homeserver, so
// that every later request (by this or any other client) can resolve
// signer's identity to that homeserver the same way resolveHostport does.
func (c *Client) PublishHomeserver(ctx context.Context, signer crypto.Keypair, host string, port uint16) error {
	if c.PKDNS == nil {
		return apperr.Build("no PKDNS client configured", nil)
	}
	return c.PKDNS.PublishHomeserver(ctx, signer, pkdns.Force(), host, port)
}

// resolveHostport resolves user's published homeserver over PKDNS. An empty
// PKDNS client (test-only) or a missing record both fall back to dialing
// the `_pubky.<pubkey>` convention directly.
func (c *Client) resolveHostport(ctx context.Context, user crypto.PublicKey) (string, error) {
	if c.PKDNS == nil {
		return "", nil
	}
	spec, err := c.PKDNS.ResolveHomeserver(ctx, user)
	if err != nil {
		return "", err
	}
	if spec == nil {
		return "", nil
	}
	if spec.Port == 0 {
		return spec.Host, nil
	}
	return fmt.Sprintf("%s:%d", spec.Host, spec.Port), nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return apperr.Request(resp.StatusCode, string(bytes.TrimSpace(body)))
}
