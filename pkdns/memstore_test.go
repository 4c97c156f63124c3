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
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
)

func TestMemoryStoreFetchMissing(t *testing.T) {
	s := NewMemoryStore()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), kp.PublicKey())
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStorePublishThenFetch(t *testing.T) {
	s := NewMemoryStore()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	rr := &dns.HTTPS{SVCB: dns.SVCB{
		Hdr:      dns.RR_Header{Name: PubkyRecordName, Rrtype: dns.TypeHTTPS, Class: dns.ClassINET},
		Priority: 1,
		Target:   dns.Fqdn("example.com"),
	}}
	p, err := Sign(kp, ptime.Now(), []dns.RR{rr})
	require.NoError(t, err)

	require.NoError(t, s.Publish(context.Background(), p))

	got, err := s.Fetch(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.Equal(t, p.PublicKey, got.PublicKey)
	require.Equal(t, p.Timestamp, got.Timestamp)
}

func TestMemoryStorePublishOverwritesPrevious(t *testing.T) {
	s := NewMemoryStore()
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	rr := &dns.HTTPS{SVCB: dns.SVCB{
		Hdr:      dns.RR_Header{Name: PubkyRecordName, Rrtype: dns.TypeHTTPS, Class: dns.ClassINET},
		Priority: 1,
		Target:   dns.Fqdn("example.com"),
	}}
	first, err := Sign(kp, ptime.Now(), []dns.RR{rr})
	require.NoError(t, err)
	require.NoError(t, s.Publish(context.Background(), first))

	second, err := Sign(kp, first.Timestamp+1, []dns.RR{rr})
	require.NoError(t, err)
	require.NoError(t, s.Publish(context.Background(), second))

	got, err := s.Fetch(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.Equal(t, second.Timestamp, got.Timestamp)
}
