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
	"time"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/applog"
	"github.com/pubky-network/pubky-go/pkdns"
)

// KeyRepublisher republishes the homeserver's own PKDNS packet on an
// interval, so its `_pubky` record doesn't fall out of the DHT between
// restarts (spec.md §4.11, grounded on key_republisher.rs's hourly task).
type KeyRepublisher struct {
	client *pkdns.Client
	signer crypto.Keypair
	host   string
	port   uint16
	h      *handle
}

// NewKeyRepublisher builds a republisher; interval is clamped to
// pkdns.MinRepublishInterval.
func NewKeyRepublisher(client *pkdns.Client, signer crypto.Keypair, host string, port uint16, interval time.Duration) *KeyRepublisher {
	r := &KeyRepublisher{client: client, signer: signer, host: host, port: port}
	r.h = newHandle(r.republishOnce, pkdns.ClampRepublishInterval(interval))
	return r
}

// Start publishes once synchronously (so the caller learns immediately if
// publishing is broken), then begins the periodic background republish.
func (r *KeyRepublisher) Start(ctx context.Context) error {
	if err := r.client.PublishHomeserver(ctx, r.signer, pkdns.Force(), r.host, r.port); err != nil {
		return err
	}
	r.h.Start()
	return nil
}

// Stop cancels the background republish and waits for any in-flight
// publish to finish.
func (r *KeyRepublisher) Stop() {
	r.h.Stop()
}

func (r *KeyRepublisher) republishOnce(ctx context.Context) {
	if err := r.client.PublishHomeserver(ctx, r.signer, pkdns.Force(), r.host, r.port); err != nil {
		applog.Error.Errorf("workers: failed to republish homeserver key: %s", err)
		return
	}
	applog.Info.Infof("workers: republished homeserver key")
}
