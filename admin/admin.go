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

// Package admin implements the loopback-only operator surface supplemented
// from original_source/pubky-homeserver/src/admin/routes: a raw file browse
// endpoint, a force-delete that bypasses capability checks, and a
// session-validity check an nginx `auth_request` directive can point at.
// Callers are expected to bind this router's handler to a loopback address
// only (spec.md §4.11 supplement) - this package does not enforce that
// itself, the way the teacher leaves transport binding to its cmdline.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/pubkey"
	"github.com/pubky-network/pubky-go/session"
	"github.com/pubky-network/pubky-go/storage"
)

// Server bundles the dependencies the admin routes need: direct engine
// access (no capability gate) and the session store for the nginx
// sub-request check.
type Server struct {
	Engine   *storage.Engine
	Sessions session.Store
	// Password is checked against HTTP Basic Auth's username "admin",
	// matching dav_handler.rs's is_valid_authorization_header_str.
	Password string
}

// Router builds the admin HTTP surface. /dav and /entries require Basic
// Auth; /nginx_auth_request does not, since nginx forwards the original
// caller's session cookie rather than operator credentials.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	protected := r.PathPrefix("/admin").Subrouter()
	protected.Use(s.requireBasicAuth)
	protected.HandleFunc("/dav/{pubkey}/{path:.*}", s.handleDav).Methods(http.MethodGet)
	protected.HandleFunc("/entries/{pubkey}/{path:.*}", s.handleDeleteEntry).Methods(http.MethodDelete)

	r.HandleFunc("/admin/nginx_auth_request", s.handleNginxAuthRequest).Methods(http.MethodGet)

	return r
}

func (s *Server) requireBasicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		validUser := subtle.ConstantTimeCompare([]byte(username), []byte("admin")) == 1
		validPass := subtle.ConstantTimeCompare([]byte(password), []byte(s.Password)) == 1
		if !ok || !validUser || !validPass {
			w.Header().Set("WWW-Authenticate", `Basic realm="admin"`)
			writeError(w, apperr.Request(http.StatusUnauthorized, "invalid admin credentials"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleDav implements GET /admin/dav/{pubkey}/{path...}: a directory path
// (trailing slash, or empty) lists entries the way handleListObjects does;
// anything else streams the object body, both without any capability check
// (the admin password is the only gate), matching the original's "full
// access to all files".
func (s *Server) handleDav(w http.ResponseWriter, r *http.Request) {
	user, path, err := davTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if strings.HasSuffix(path, "/") {
		ids, err := s.Engine.List(r.Context(), user, path, storage.ListOptions{})
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ids)
		return
	}

	entry, body, err := s.Engine.Get(r.Context(), user, path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()
	w.Header().Set("Content-Type", entry.ContentType)
	io.Copy(w, body)
}

// handleDeleteEntry implements DELETE /admin/entries/{pubkey}/{path...}:
// force-delete, skipping the capability check handlers_object.go's
// handleDeleteObject enforces for ordinary clients.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	user, path, err := davTarget(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Engine.Delete(r.Context(), user, path); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

const nginxUserIDHeader = "x-user-id"

// handleNginxAuthRequest implements GET /admin/nginx_auth_request
// (nginx_auth_request.rs): nginx's `auth_request` directive forwards the
// original request here without its body; a valid session cookie for the
// user named by the pubky-host header gets that user's public key echoed
// back in x-user-id for nginx to propagate via auth_request_set.
func (s *Server) handleNginxAuthRequest(w http.ResponseWriter, r *http.Request) {
	user, err := targetUserFromHeader(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := r.Cookie(session.CookieName(user))
	if err != nil {
		writeError(w, apperr.Request(http.StatusUnauthorized, "session cookie not found"))
		return
	}
	sess, err := s.Sessions.Get(r.Context(), c.Value)
	if err != nil {
		writeError(w, apperr.Request(http.StatusUnauthorized, "session not found"))
		return
	}
	if sess.UserPubkey != user {
		writeError(w, apperr.Request(http.StatusUnauthorized, "session does not belong to this user"))
		return
	}
	w.Header().Set(nginxUserIDHeader, pubkey.Encode(sess.UserPubkey))
	w.WriteHeader(http.StatusOK)
}

func davTarget(r *http.Request) (crypto.PublicKey, string, error) {
	vars := mux.Vars(r)
	user, err := pubkey.Parse(vars["pubkey"])
	if err != nil {
		return crypto.PublicKey{}, "", apperr.Request(http.StatusBadRequest, "invalid pubkey")
	}
	return user, "/" + vars["path"], nil
}

const pubkyHostHeader = "pubky-host"

func targetUserFromHeader(r *http.Request) (crypto.PublicKey, error) {
	if h := r.Header.Get(pubkyHostHeader); h != "" {
		return pubkey.ExtractPublicKey(h)
	}
	return crypto.PublicKey{}, apperr.Request(http.StatusBadRequest, "missing pubky-host header")
}

// writeError maps err to an HTTP status the same way homeserver/errors.go's
// writeError does, duplicated rather than imported to keep admin from
// depending on the homeserver package for a five-line helper.
func writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		applog.Error.Errorf("admin: %s", err)
	}
	http.Error(w, msg, status)
}

func classify(err error) (int, string) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind == apperr.KindRequest {
		return appErr.Status, appErr.Message
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusUnauthorized, "no valid session"
	case errors.Is(err, models.ErrEntryNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
