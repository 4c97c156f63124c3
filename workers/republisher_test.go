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

package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/pkdns"
)

type fakePkdnsStore struct {
	mu            sync.Mutex
	packets       map[crypto.PublicKey]pkdns.Packet
	publishCalls  int32
	nextPublishErr error
}

func newFakePkdnsStore() *fakePkdnsStore {
	return &fakePkdnsStore{packets: map[crypto.PublicKey]pkdns.Packet{}}
}

func (s *fakePkdnsStore) Fetch(ctx context.Context, key crypto.PublicKey) (pkdns.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.packets[key]
	if !ok {
		return pkdns.Packet{}, pkdns.ErrNotFound
	}
	return p, nil
}

func (s *fakePkdnsStore) Publish(ctx context.Context, p pkdns.Packet) error {
	atomic.AddInt32(&s.publishCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextPublishErr != nil {
		err := s.nextPublishErr
		s.nextPublishErr = nil
		return err
	}
	s.packets[p.PublicKey] = p
	return nil
}

func TestKeyRepublisherStartPublishesImmediately(t *testing.T) {
	store := newFakePkdnsStore()
	client := pkdns.NewClient(store)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	r := NewKeyRepublisher(client, signer, "example.com", 0, time.Hour)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.EqualValues(t, 1, atomic.LoadInt32(&store.publishCalls))
}

func TestKeyRepublisherStartSurfacesPublishError(t *testing.T) {
	store := newFakePkdnsStore()
	store.nextPublishErr = errors.New("dht unreachable")
	client := pkdns.NewClient(store)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	r := NewKeyRepublisher(client, signer, "example.com", 0, time.Hour)
	require.Error(t, r.Start(context.Background()))
}

func TestKeyRepublisherRepublishesOnInterval(t *testing.T) {
	store := newFakePkdnsStore()
	client := pkdns.NewClient(store)
	signer, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	r := NewKeyRepublisher(client, signer, "example.com", 0, pkdns.MinRepublishInterval)
	r.h.period = 10 * time.Millisecond // exercise the periodic path quickly without waiting out the real floor
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&store.publishCalls) >= 2 }, time.Second, 5*time.Millisecond)
}
