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

// Package ratelimit implements a per-IP token bucket in front of the
// homeserver's /signup and /signin endpoints, generalizing
// framework/conn/host_limiter.go (which throttles outbound federation
// calls by destination host) to the inbound direction, keyed by caller IP
// instead.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPruneAge bounds how long an idle IP's bucket is kept around.
const DefaultPruneAge = 10 * time.Minute

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Limiter hands out one rate.Limiter per IP, pruning entries idle for
// longer than pruneAge on every call rather than the teacher's separate
// ticker goroutine - simpler, and the map only ever grows by one entry
// per distinct caller between prunes.
type Limiter struct {
	limit    rate.Limit
	burst    int
	pruneAge time.Duration

	mu sync.Mutex
	m  map[string]*entry
}

// New builds a Limiter allowing qps requests per second, per IP, with
// burst allowed immediately. pruneAge falls back to DefaultPruneAge when
// zero or negative.
func New(qps float64, burst int, pruneAge time.Duration) *Limiter {
	if pruneAge <= 0 {
		pruneAge = DefaultPruneAge
	}
	return &Limiter{
		limit:    rate.Limit(qps),
		burst:    burst,
		pruneAge: pruneAge,
		m:        make(map[string]*entry),
	}
}

// Allow reports whether ip may proceed, consuming a token if so.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for k, v := range l.m {
		if now.Sub(v.lastUsed) > l.pruneAge {
			delete(l.m, k)
		}
	}

	e, ok := l.m[ip]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.m[ip] = e
	}
	e.lastUsed = now
	return e.limiter.Allow()
}

// Middleware wraps next, rejecting with 429 Too Many Requests any caller
// whose IP has exhausted its bucket.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(remoteIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
