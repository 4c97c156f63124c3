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
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/ptime"
	"github.com/pubky-network/pubky-go/session"
	"github.com/pubky-network/pubky-go/token"
)

const maxAuthTokenBody = 4 << 10

// attestationHeader carries the hex-encoded Attestation bound to the
// session secret presented as a bearer token, the for-token alternative to
// the cookie flow spec.md §4.4 describes for clients that don't keep a
// cookie jar.
const attestationHeader = "pubky-attestation"

// handleSignup implements POST /signup (spec.md §4.10): verify the body's
// AuthToken, refuse an already-existing user, admit a signup code when
// signup_mode=token_required, then create the user and a session.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	t, err := s.readAuthToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.Users.ByPublicKey(r.Context(), t.Signer); err == nil {
		writeError(w, apperr.Request(http.StatusConflict, "user already exists"))
		return
	} else if !errors.Is(err, models.ErrUserNotFound) {
		writeError(w, err)
		return
	}

	if s.SignupMode == "token_required" {
		code := r.URL.Query().Get("signup_token")
		if code == "" {
			writeError(w, apperr.Request(http.StatusBadRequest, "signup_token is required"))
			return
		}
		if err := s.SignupCodes.Claim(r.Context(), code, t.Signer); err != nil {
			writeError(w, apperr.Request(http.StatusUnauthorized, "invalid or already-used signup token"))
			return
		}
	}

	if _, err := s.Users.Create(r.Context(), t.Signer, s.DefaultQuotaBytes); err != nil {
		writeError(w, err)
		return
	}
	s.establishSession(w, r, t)
}

// handleSignin implements POST /signin (spec.md §4.10): as signup, but the
// user must already exist and no signup code is consulted.
func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	t, err := s.readAuthToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.Users.ByPublicKey(r.Context(), t.Signer); err != nil {
		writeError(w, err)
		return
	}
	s.establishSession(w, r, t)
}

func (s *Server) readAuthToken(r *http.Request) (token.AuthToken, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAuthTokenBody))
	if err != nil {
		return token.AuthToken{}, apperr.Request(http.StatusBadRequest, "failed to read body")
	}
	t, err := token.Deserialize(body)
	if err != nil {
		return token.AuthToken{}, apperr.Request(http.StatusBadRequest, "malformed auth token")
	}
	if err := s.Verifier.Verify(t); err != nil {
		return token.AuthToken{}, apperr.Request(http.StatusUnauthorized, "auth token rejected: "+err.Error())
	}
	return t, nil
}

func (s *Server) establishSession(w http.ResponseWriter, r *http.Request, t token.AuthToken) {
	sess, err := session.New(t.Signer, t.Capabilities, r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err = s.Sessions.Create(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	http.SetCookie(w, session.NewCookie(s.Host, t.Signer, sess.Secret))
	w.WriteHeader(http.StatusOK)
}

// handleGetSession implements GET /session.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	user, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.sessionFromRequest(r, user)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(sess.Capabilities.String()))
}

// handleDeleteSession implements DELETE /session: idempotent signout
// (spec.md §8 invariant 11).
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	user, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := r.Cookie(session.CookieName(user))
	if err == nil {
		s.Sessions.Delete(r.Context(), c.Value)
	}
	w.WriteHeader(http.StatusOK)
}

// sessionFromCookie fetches the live session for user from r's cookies,
// mapping a missing cookie or an unknown secret to session.ErrNotFound
// uniformly.
func (s *Server) sessionFromCookie(r *http.Request, user crypto.PublicKey) (session.Session, error) {
	c, err := r.Cookie(session.CookieName(user))
	if err != nil {
		return session.Session{}, session.ErrNotFound
	}
	return s.Sessions.Get(r.Context(), c.Value)
}

// sessionFromRequest resolves the live session for user, preferring the
// cookie flow and falling back to a bearer session secret bound to a
// pubky-attestation header for clients that present Attestation instead of
// a cookie jar.
func (s *Server) sessionFromRequest(r *http.Request, user crypto.PublicKey) (session.Session, error) {
	if sess, err := s.sessionFromCookie(r, user); err == nil {
		return sess, nil
	}
	return s.sessionFromAttestation(r, user)
}

// sessionFromAttestation verifies an Authorization: Bearer <session secret>
// header against a pubky-attestation header binding that exact secret: the
// attestation's audience must be this homeserver, its signer must be user,
// its token_hash must equal the Blake3 hash of the presented secret, and it
// must fall within token.MaxAttestationAge of now.
func (s *Server) sessionFromAttestation(r *http.Request, user crypto.PublicKey) (session.Session, error) {
	secret := bearerToken(r)
	raw := r.Header.Get(attestationHeader)
	if secret == "" || raw == "" {
		return session.Session{}, session.ErrNotFound
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return session.Session{}, apperr.Request(http.StatusBadRequest, "malformed attestation")
	}
	a, err := token.ParseAttestation(b)
	if err != nil {
		return session.Session{}, apperr.Request(http.StatusBadRequest, err.Error())
	}
	if a.Signer != user {
		return session.Session{}, apperr.Request(http.StatusForbidden, "attestation signer does not match target user")
	}
	if err := a.Verify(s.Identity.PublicKey(), ptime.Now()); err != nil {
		return session.Session{}, apperr.Request(http.StatusUnauthorized, "attestation rejected: "+err.Error())
	}
	if a.TokenHash == nil || *a.TokenHash != crypto.HashBytes([]byte(secret)) {
		return session.Session{}, apperr.Request(http.StatusUnauthorized, "attestation does not bind the presented token")
	}

	return s.Sessions.Get(r.Context(), secret)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
