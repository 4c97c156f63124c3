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

package pkdns

import (
	"context"
	"errors"
	"time"

	"github.com/miekg/dns"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/ptime"
)

// ErrNotFound is returned by a Store when no packet exists for a key; it is
// never surfaced to ResolveHomeserver callers, who see (nil, nil) instead
// (spec.md §4.5: "Resolution failures are None, not errors.").
var ErrNotFound = errors.New("pkdns: packet not found")

// Store is the external directory substrate (a Mainline-DHT-like network in
// production, pkarr's own terminology). Fetch and Publish are expected to
// be slow, retryable network calls; a Store reports retryable conditions
// (timeout, no closest nodes, transient DHT error) as an *apperr.Error of
// kind KindPkarr with Retryable set.
type Store interface {
	Fetch(ctx context.Context, key crypto.PublicKey) (Packet, error)
	Publish(ctx context.Context, packet Packet) error
}

func isRetryable(err error) bool {
	var ae *apperr.Error
	return errors.As(err, &ae) && ae.Kind == apperr.KindPkarr && ae.Retryable
}

// HostSpec is the resolved homeserver endpoint: a target host and an
// optional non-default HTTP port (testnet/local deployments).
type HostSpec struct {
	Host string
	Port uint16
}

// PublishMode selects when PublishHomeserver actually republishes.
type PublishMode struct {
	force   bool
	maxAge  time.Duration
}

// Force always publishes.
func Force() PublishMode { return PublishMode{force: true} }

// IfOlderThan short-circuits when the existing packet's age is <= maxAge.
func IfOlderThan(maxAge time.Duration) PublishMode {
	return PublishMode{maxAge: maxAge}
}

const (
	maxRetries   = 3
	retryBackoff = 1 * time.Second
)

// Client resolves and publishes `_pubky` records against a Store, applying
// the retry and freshness policy from spec.md §4.5.
type Client struct {
	store Store
	sleep func(time.Duration)
}

// NewClient wraps a Store.
func NewClient(store Store) *Client {
	return &Client{store: store, sleep: time.Sleep}
}

// ResolveHomeserver fetches the most-recent signed packet for userKey and
// extracts the highest-priority `_pubky` SVCB/HTTPS target. A missing
// packet or missing record is reported as (nil, nil), not an error.
func (c *Client) ResolveHomeserver(ctx context.Context, userKey crypto.PublicKey) (*HostSpec, error) {
	packet, err := c.fetchWithRetry(ctx, userKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := packet.Verify(); err != nil {
		return nil, apperr.Pkarr("malformed record", err, false)
	}
	host, port, ok := FindPubkyTarget(packet.Records)
	if !ok {
		return nil, nil
	}
	return &HostSpec{Host: host, Port: port}, nil
}

// PublishHomeserver publishes a `_pubky` record pointing at hostOverride
// (or, if empty, whatever host is currently published) according to mode,
// preserving every other record already in the signer's packet, and
// carrying the previous packet's timestamp to establish ordering at the
// PKDNS layer.
func (c *Client) PublishHomeserver(ctx context.Context, signer crypto.Keypair, mode PublishMode, hostOverride string, port uint16) error {
	existing, err := c.fetchWithRetry(ctx, signer.PublicKey())
	haveExisting := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if haveExisting && !mode.force {
		age := ptime.Now().Sub(existing.Timestamp)
		if age <= mode.maxAge {
			applog.Info.Infof("pkdns: skipping republish for %x, age %s <= %s", signer.PublicKey(), age, mode.maxAge)
			return nil
		}
	}

	records := preservedRecords(existing, haveExisting)
	target := hostOverride
	if target == "" && haveExisting {
		if h, _, ok := FindPubkyTarget(existing.Records); ok {
			target = h
		}
	}
	if target == "" {
		return errors.New("pkdns: no host to publish and none previously published")
	}

	svcb := &dns.SVCB{
		Hdr:      dns.RR_Header{Name: PubkyRecordName, Rrtype: dns.TypeHTTPS, Class: dns.ClassINET, Ttl: 300},
		Priority: 1,
		Target:   dns.Fqdn(target),
	}
	if port != 0 {
		svcb.Value = append(svcb.Value, HTTPPortValue(port))
	}
	records = append(records, &dns.HTTPS{SVCB: *svcb})

	packet, err := Sign(signer, ptime.Now(), records)
	if err != nil {
		return err
	}
	return c.publishWithRetry(ctx, packet)
}

// preservedRecords returns every record from the existing packet that is
// not itself a `_pubky` record, so a republish never clobbers unrelated
// records the user's key also carries.
func preservedRecords(existing Packet, have bool) []dns.RR {
	if !have {
		return nil
	}
	out := make([]dns.RR, 0, len(existing.Records))
	for _, rr := range existing.Records {
		switch v := rr.(type) {
		case *dns.HTTPS:
			if ownerLabel(v.Hdr.Name) == PubkyRecordName {
				continue
			}
		case *dns.SVCB:
			if ownerLabel(v.Hdr.Name) == PubkyRecordName {
				continue
			}
		}
		out = append(out, rr)
	}
	return out
}

func (c *Client) fetchWithRetry(ctx context.Context, key crypto.PublicKey) (Packet, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		packet, err := c.store.Fetch(ctx, key)
		if err == nil {
			return packet, nil
		}
		if errors.Is(err, ErrNotFound) || !isRetryable(err) {
			return Packet{}, err
		}
		lastErr = err
		applog.Error.Errorf("pkdns: transient fetch error (attempt %d/%d): %v", attempt+1, maxRetries, err)
		if attempt < maxRetries {
			c.sleep(retryBackoff)
		}
	}
	return Packet{}, lastErr
}

func (c *Client) publishWithRetry(ctx context.Context, packet Packet) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.store.Publish(ctx, packet)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		applog.Error.Errorf("pkdns: transient publish error (attempt %d/%d): %v", attempt+1, maxRetries, err)
		if attempt < maxRetries {
			c.sleep(retryBackoff)
		}
	}
	return lastErr
}

// MinRepublishInterval is the floor background republishers must clamp
// configured intervals to (spec.md §4.5, §9).
const MinRepublishInterval = 30 * time.Minute

// ClampRepublishInterval enforces MinRepublishInterval, logging a warning
// when the configured value had to be raised.
func ClampRepublishInterval(configured time.Duration) time.Duration {
	if configured < MinRepublishInterval {
		applog.Info.Warningf("pkdns: configured republish interval %s is below the %s floor; clamping", configured, MinRepublishInterval)
		return MinRepublishInterval
	}
	return configured
}
