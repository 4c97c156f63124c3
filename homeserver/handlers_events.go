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
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/events"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/pubkey"
)

type eventDTO struct {
	ID          int64  `json:"id"`
	User        string `json:"user"`
	Kind        string `json:"kind"`
	Path        string `json:"path"`
	ContentHash string `json:"content_hash,omitempty"`
}

func toDTO(ev models.Event) eventDTO {
	d := eventDTO{ID: ev.ID, User: pubkey.Encode(ev.UserPubkey), Kind: string(ev.Kind), Path: ev.Path}
	if ev.ContentHash != nil {
		d.ContentHash = *ev.ContentHash
	}
	return d
}

// handleEventsList implements GET /events?cursor&limit (spec.md §4.9's
// global by_cursor query, §6.1).
func (s *Server) handleEventsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor, err := s.Events.ParseCursor(r.Context(), q.Get("cursor"))
	if err != nil {
		writeError(w, apperr.Request(http.StatusBadRequest, err.Error()))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	evs, err := s.Events.ByCursor(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]eventDTO, len(evs))
	for i, ev := range evs {
		dtos[i] = toDTO(ev)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dtos)
}

// handleEventsStream implements GET /events-stream?user=&cursor=&live=true&path=
// (spec.md §4.9/§6.1): replays the requested users' backlog from cursor,
// then, if live=true, streams newly-committed matching events as
// text/event-stream until the client disconnects.
func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pathPrefix := q.Get("path")

	cursor, err := s.Events.ParseCursor(r.Context(), q.Get("cursor"))
	if err != nil {
		writeError(w, apperr.Request(http.StatusBadRequest, err.Error()))
		return
	}

	var cursors []events.UserCursor
	for _, u := range strings.Split(q.Get("user"), ",") {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		pk, err := pubkey.Parse(u)
		if err != nil {
			writeError(w, apperr.Request(http.StatusBadRequest, "invalid user: "+u))
			return
		}
		cursors = append(cursors, events.UserCursor{UserPubkey: pk, Cursor: cursor})
	}
	if len(cursors) == 0 {
		writeError(w, apperr.Request(http.StatusBadRequest, "at least one user is required"))
		return
	}

	backlog, err := s.Events.ByUserCursors(r.Context(), cursors, false, pathPrefix)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, canFlush := w.(http.Flusher)

	users := make(map[crypto.PublicKey]bool, len(cursors))
	for _, c := range cursors {
		users[c.UserPubkey] = true
	}

	for _, ev := range backlog {
		writeSSE(w, ev)
	}
	if canFlush {
		flusher.Flush()
	}

	if q.Get("live") != "true" {
		return
	}

	sub := s.Events.Subscribe()
	defer sub.Close()

	ctx := r.Context()
	var lastLagged int64
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.Events():
			if lagged := sub.Lagged(); lagged != lastLagged && s.Metrics != nil {
				s.Metrics.ObserveLag(lagged - lastLagged)
				lastLagged = lagged
			}
			if !users[ev.UserPubkey] || (pathPrefix != "" && !strings.HasPrefix(ev.Path, pathPrefix)) {
				continue
			}
			writeSSE(w, ev)
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, ev models.Event) {
	b, _ := json.Marshal(toDTO(ev))
	fmt.Fprintf(w, "data: %s\n\n", b)
}
