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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the counters spec.md's testable properties call for
// (event-stream subscriber count and lag, per S6) on the /metrics route,
// registered against a per-instance registry rather than the global
// default one so tests can spin up more than one Server.
type Metrics struct {
	registry          *prometheus.Registry
	subscriberCount   prometheus.GaugeFunc
	streamLaggedTotal prometheus.Counter
}

// NewMetrics wires a Metrics against s: subscriberCount samples
// s.Events.SubscriberCount() on every scrape.
func NewMetrics(s *Server) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}
	m.subscriberCount = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pubky",
		Subsystem: "events",
		Name:      "stream_subscribers",
		Help:      "Number of live /events-stream subscribers.",
	}, func() float64 { return float64(s.Events.SubscriberCount()) })
	m.streamLaggedTotal = promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "pubky",
		Subsystem: "events",
		Name:      "stream_broadcast_lagged_total",
		Help:      "Count of events dropped for /events-stream subscribers that lagged past the broadcast buffer.",
	})
	return m
}

// ObserveLag increments the lagged counter by delta, called whenever a
// stream handler notices its Subscription.Lagged() count has grown.
func (m *Metrics) ObserveLag(delta int64) {
	m.streamLaggedTotal.Add(float64(delta))
}
