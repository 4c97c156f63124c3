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

// Package homeserver wires the storage engine, session store, and event
// log into the HTTP surface a pubky client talks to: signup/signin,
// session introspection, and the PUT/GET/DELETE/LIST object operations
// (spec.md §4.10).
package homeserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/events"
	"github.com/pubky-network/pubky-go/models"
	"github.com/pubky-network/pubky-go/ratelimit"
	"github.com/pubky-network/pubky-go/session"
	"github.com/pubky-network/pubky-go/storage"
	"github.com/pubky-network/pubky-go/token"
)

// Server bundles every dependency a homeserver HTTP handler needs.
// Identity is the homeserver's own keypair, used as the audience for
// Attestation verification and to sign its own PKDNS record elsewhere.
type Server struct {
	Identity   crypto.Keypair
	Host       string
	Engine     *storage.Engine
	Users      *models.Users
	Sessions   session.Store
	SignupCodes *models.SignupCodes
	Events     *events.Service
	Verifier   *token.Verifier
	SignupMode string // "token_required" demands a signup code; any other value (default "open") does not
	DefaultQuotaBytes int64

	Metrics *Metrics

	// AuthRateLimiter, when set, throttles /signup and /signin per caller
	// IP (spec.md §4.11 supplement, generalizing framework/conn's
	// outbound host limiter to the inbound direction).
	AuthRateLimiter *ratelimit.Limiter
}

// Router builds the gorilla/mux router serving every endpoint in spec.md
// §4.10, the way apcore's newHandler assembles one mux.Router per
// concern rather than a single flat route list.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	auth := r.NewRoute().Subrouter()
	if s.AuthRateLimiter != nil {
		auth.Use(s.AuthRateLimiter.Middleware)
	}
	auth.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	auth.HandleFunc("/signin", s.handleSignin).Methods(http.MethodPost)
	r.HandleFunc("/session", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/session", s.handleDeleteSession).Methods(http.MethodDelete)

	r.HandleFunc("/events", s.handleEventsList).Methods(http.MethodGet)
	r.HandleFunc("/events-stream", s.handleEventsStream).Methods(http.MethodGet)

	if s.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	r.PathPrefix("/pub/").HandlerFunc(s.handleObject)
	r.PathPrefix("/").HandlerFunc(s.handleObject)

	return r
}
