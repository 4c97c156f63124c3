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
	"bytes"
	"database/sql"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/cap"
	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/events"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/pubkey"
	"github.com/pubky-network/pubky-go/storage"
	"github.com/pubky-network/pubky-go/token"
)

func newTestServer(t *testing.T) (*Server, crypto.Keypair) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dialect := models.NewSqliteV0()
	users := &models.Users{}
	sessions := &models.Sessions{}
	entries := &models.Entries{}
	evModel := &models.Events{}
	signupCodes := &models.SignupCodes{}
	require.NoError(t, models.CreateTables(db, dialect, users, sessions, entries, evModel, signupCodes))

	blobs, err := storage.NewFileBlobStore(t.TempDir())
	require.NoError(t, err)

	svc := events.NewService(evModel, 8)
	engine := storage.NewEngine(db, dialect, blobs, users, entries, svc)

	homeserverKey, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	s := &Server{
		Identity:          homeserverKey,
		Host:              "example.com",
		Engine:            engine,
		Users:             users,
		Sessions:          sessions,
		SignupCodes:       signupCodes,
		Events:            svc,
		Verifier:          token.NewVerifier(),
		SignupMode:        "open",
		DefaultQuotaBytes: 1 << 20,
	}
	return s, homeserverKey
}

func signupRequest(t *testing.T, s *Server, signer crypto.Keypair, caps cap.Capabilities) *http.Cookie {
	t.Helper()
	at := token.New(signer, caps)
	req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(at.Serialize()))
	req.Host = "_pubky." + pubkey.Encode(signer.PublicKey())
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestSignupCreatesUserAndSession(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	c := signupRequest(t, s, signer, cap.Capabilities{cap.Root()})
	require.Equal(t, pubkey.Encode(signer.PublicKey()), c.Name)
}

func TestSignupRejectsExistingUser(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	signupRequest(t, s, signer, cap.Capabilities{cap.Root()})

	at := token.New(signer, cap.Capabilities{cap.Root()})
	req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(at.Serialize()))
	req.Host = "_pubky." + pubkey.Encode(signer.PublicKey())
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestSigninRequiresExistingUser(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	at := token.New(signer, cap.Capabilities{cap.Root()})
	req := httptest.NewRequest(http.MethodPost, "/signin", bytes.NewReader(at.Serialize()))
	req.Host = "_pubky." + pubkey.Encode(signer.PublicKey())
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPutGetPublicObjectRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	cookie := signupRequest(t, s, signer, cap.Capabilities{cap.Root()})
	host := "_pubky." + pubkey.Encode(signer.PublicKey())

	putReq := httptest.NewRequest(http.MethodPut, "/pub/hello.txt", bytes.NewReader([]byte("hi there")))
	putReq.Host = host
	putReq.AddCookie(cookie)
	putW := httptest.NewRecorder()
	s.Router().ServeHTTP(putW, putReq)
	require.Equal(t, http.StatusOK, putW.Code)

	getReq := httptest.NewRequest(http.MethodGet, "/pub/hello.txt", nil)
	getReq.Host = host
	getW := httptest.NewRecorder()
	s.Router().ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)
	require.Equal(t, "hi there", getW.Body.String())
}

func TestPrivateReadRequiresSession(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	signupRequest(t, s, signer, cap.Capabilities{cap.Root()})
	host := "_pubky." + pubkey.Encode(signer.PublicKey())

	req := httptest.NewRequest(http.MethodGet, "/private/notes.txt", nil)
	req.Host = host
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWriteOutsidePublicPrefixForbidden(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	cookie := signupRequest(t, s, signer, cap.Capabilities{cap.Root()})
	host := "_pubky." + pubkey.Encode(signer.PublicKey())

	req := httptest.NewRequest(http.MethodPut, "/private/x.txt", bytes.NewReader([]byte("x")))
	req.Host = host
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWriteWithoutCapabilityRejected(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	readOnly := cap.Capabilities{{Scope: "/pub/", Actions: []cap.Action{cap.Read}}}
	cookie := signupRequest(t, s, signer, readOnly)
	host := "_pubky." + pubkey.Encode(signer.PublicKey())

	req := httptest.NewRequest(http.MethodPut, "/pub/a.txt", bytes.NewReader([]byte("x")))
	req.Host = host
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestListObjects(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	cookie := signupRequest(t, s, signer, cap.Capabilities{cap.Root()})
	host := "_pubky." + pubkey.Encode(signer.PublicKey())

	for _, name := range []string{"a.txt", "b.txt"} {
		req := httptest.NewRequest(http.MethodPut, "/pub/"+name, bytes.NewReader([]byte("x")))
		req.Host = host
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/pub/", nil)
	req.Host = host
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "a.txt")
	require.Contains(t, w.Body.String(), "b.txt")
}

func TestSessionViaAttestation(t *testing.T) {
	s, homeserverKey := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	cookie := signupRequest(t, s, signer, cap.Capabilities{cap.Root()})
	host := "_pubky." + pubkey.Encode(signer.PublicKey())

	at := token.NewForToken(signer, homeserverKey.PublicKey(), []byte(cookie.Value))

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Host = host
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	req.Header.Set(attestationHeader, hex.EncodeToString(at.Serialize()))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSessionViaAttestationRejectsWrongAudience(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	cookie := signupRequest(t, s, signer, cap.Capabilities{cap.Root()})
	host := "_pubky." + pubkey.Encode(signer.PublicKey())

	wrongAudience, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	at := token.NewForToken(signer, wrongAudience.PublicKey(), []byte(cookie.Value))

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Host = host
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	req.Header.Set(attestationHeader, hex.EncodeToString(at.Serialize()))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSignoutIsIdempotent(t *testing.T) {
	s, _ := newTestServer(t)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)
	cookie := signupRequest(t, s, signer, cap.Capabilities{cap.Root()})
	host := "_pubky." + pubkey.Encode(signer.PublicKey())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/session", nil)
		req.Host = host
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
}
