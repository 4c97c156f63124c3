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
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/pubky-network/pubky-go/cap"
	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/storage"
)

// handleObject dispatches the PUT/POST/PATCH/DELETE/GET/HEAD object
// operations (spec.md §6.1) against storage.Engine for the path's target
// user.
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	user, err := targetUser(r)
	if err != nil {
		writeError(w, err)
		return
	}
	path := r.URL.Path

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.handleGetObject(w, r, user, path)
	case http.MethodPut, http.MethodPost, http.MethodPatch:
		s.handlePutObject(w, r, user, path)
	case http.MethodDelete:
		s.handleDeleteObject(w, r, user, path)
	default:
		writeError(w, apperr.Request(http.StatusMethodNotAllowed, "unsupported method"))
	}
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request, user crypto.PublicKey, path string) {
	if !isPublicPath(path) {
		if err := s.requireCapability(r, user, cap.Read, path); err != nil {
			writeError(w, err)
			return
		}
	}

	if strings.HasSuffix(path, "/") {
		s.handleListObjects(w, r, user, path)
		return
	}

	entry, body, err := s.Engine.Get(r.Context(), user, path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", entry.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(entry.ContentLength, 10))
	if r.Method == http.MethodHead {
		return
	}
	io.Copy(w, body)
}

// handleListObjects implements LIST (spec.md §4.8): a GET whose path ends
// in "/" is a directory listing rather than an object fetch, the
// convention the client facade's list(path) targets.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request, user crypto.PublicKey, prefix string) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	opts := storage.ListOptions{
		Reverse: q.Get("reverse") == "true",
		Shallow: q.Get("shallow") == "true",
		Limit:   limit,
		Cursor:  q.Get("cursor"),
	}
	ids, err := s.Engine.List(r.Context(), user, prefix, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ids)
}

func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request, user crypto.PublicKey, path string) {
	if err := s.requireCapability(r, user, cap.Write, path); err != nil {
		writeError(w, err)
		return
	}

	length := int64(-1)
	if r.ContentLength >= 0 {
		length = r.ContentLength
	}
	entry, err := s.Engine.Put(r.Context(), user, path, r.Body, r.Header.Get("Content-Type"), length)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Length", strconv.FormatInt(entry.ContentLength, 10))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request, user crypto.PublicKey, path string) {
	if err := s.requireCapability(r, user, cap.Write, path); err != nil {
		writeError(w, err)
		return
	}
	if err := s.Engine.Delete(r.Context(), user, path); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func isPublicPath(path string) bool {
	return len(path) >= len(storage.PublicPrefix) && path[:len(storage.PublicPrefix)] == storage.PublicPrefix
}

// requireCapability enforces spec.md §6.1's auth column for non-public
// reads and every write: a live session owned by user, whose capabilities
// permit action over path.
func (s *Server) requireCapability(r *http.Request, user crypto.PublicKey, action cap.Action, path string) error {
	sess, err := s.sessionFromRequest(r, user)
	if err != nil {
		return err
	}
	if sess.UserPubkey != user {
		return apperr.Request(http.StatusForbidden, "session does not belong to this user")
	}
	if !sess.Capabilities.Permits(action, path) {
		return apperr.Request(http.StatusForbidden, "capability does not cover this path")
	}
	return nil
}
