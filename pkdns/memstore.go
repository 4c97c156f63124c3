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
	"sync"

	"github.com/pubky-network/pubky-go/crypto"
)

// MemoryStore is a single-process Store, keeping every published packet in
// a map instead of a real Mainline DHT. This is the "testnet" substrate
// homeserver_app.rs's MockDataDir plays the same role for: a single-node
// deployment or test run where every participant shares one process and
// there is no real distributed directory to publish into.
type MemoryStore struct {
	mu      sync.RWMutex
	packets map[crypto.PublicKey]Packet
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{packets: make(map[crypto.PublicKey]Packet)}
}

func (s *MemoryStore) Fetch(ctx context.Context, key crypto.PublicKey) (Packet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.packets[key]
	if !ok {
		return Packet{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Publish(ctx context.Context, packet Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets[packet.PublicKey] = packet
	return nil
}
