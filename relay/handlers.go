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

package relay

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pubky-network/pubky-go/internal/applog"
)

// NewRouter builds the relay's HTTP surface: GET/POST /link/{id}.
func NewRouter(r *Relay) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/link/{id}", r.handleGet).Methods(http.MethodGet)
	router.HandleFunc("/link/{id}", r.handlePost).Methods(http.MethodPost)
	return router
}

func (r *Relay) handleGet(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	reqID := uuid.New().String()

	data, err := r.Consume(req.Context(), id)
	if err != nil {
		writeRelayError(w, reqID, id, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (r *Relay) handlePost(w http.ResponseWriter, req *http.Request) {
	id := mux.Vars(req)["id"]
	reqID := uuid.New().String()

	body, err := io.ReadAll(io.LimitReader(req.Body, int64(r.maxPayloadSize)+1))
	if err != nil {
		applog.Error.Errorf("relay[%s]: read body for %s: %v", reqID, id, err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if err := r.Produce(req.Context(), id, body); err != nil {
		writeRelayError(w, reqID, id, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeRelayError(w http.ResponseWriter, reqID, id string, err error) {
	switch {
	case errors.Is(err, ErrConflict):
		applog.Info.Infof("relay[%s]: conflicting waiter for %s", reqID, id)
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrTooLarge):
		applog.Info.Infof("relay[%s]: payload too large for %s", reqID, id)
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, ErrTimeout):
		applog.Info.Infof("relay[%s]: timed out waiting on %s", reqID, id)
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		applog.Error.Errorf("relay[%s]: %s: %v", reqID, id, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
