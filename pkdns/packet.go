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

// Package pkdns publishes and resolves the signed, DNS-formatted packets
// that let a public key advertise which homeserver hosts it, following the
// `_pubky` HTTPS/SVCB record convention. The actual distributed directory
// (a Mainline-DHT-like substrate) is an external collaborator: this package
// only defines the Store interface it needs and the client logic (most-
// recent-wins selection, freshness policy, retry) layered on top of it.
package pkdns

import (
	"fmt"

	"github.com/miekg/dns"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/ptime"
)

// PubkyRecordName is the owner name under which the homeserver-pointing
// SVCB/HTTPS record is published, relative to the signing key's zone.
const PubkyRecordName = "_pubky"

// Packet is a signed bundle of DNS resource records keyed by its
// publisher's public key. The signature covers the packed wire form of the
// records plus the publication timestamp.
type Packet struct {
	PublicKey crypto.PublicKey
	Timestamp ptime.Timestamp
	Records   []dns.RR
	Signature crypto.Signature
}

// Sign packs the records and timestamp, signs them with signer (which must
// own PublicKey), and returns the completed Packet.
func Sign(signer crypto.Keypair, timestamp ptime.Timestamp, records []dns.RR) (Packet, error) {
	p := Packet{
		PublicKey: signer.PublicKey(),
		Timestamp: timestamp,
		Records:   records,
	}
	signable, err := p.signable()
	if err != nil {
		return Packet{}, err
	}
	p.Signature = signer.Sign(signable)
	return p, nil
}

func (p Packet) signable() ([]byte, error) {
	packed, err := packRecords(p.Records)
	if err != nil {
		return nil, fmt.Errorf("pkdns: pack records: %w", err)
	}
	ts := p.Timestamp.Bytes()
	buf := make([]byte, 0, len(p.PublicKey)+8+len(packed))
	buf = append(buf, p.PublicKey[:]...)
	buf = append(buf, ts[:]...)
	buf = append(buf, packed...)
	return buf, nil
}

// Verify checks the packet's signature against its own embedded public key.
func (p Packet) Verify() error {
	signable, err := p.signable()
	if err != nil {
		return err
	}
	if !crypto.Verify(p.PublicKey, signable, p.Signature) {
		return ErrInvalidRecord{Message: "signature verification failed"}
	}
	return nil
}

func packRecords(records []dns.RR) ([]byte, error) {
	msg := new(dns.Msg)
	msg.Answer = records
	return msg.Pack()
}

func unpackRecords(b []byte) ([]dns.RR, error) {
	msg := new(dns.Msg)
	if err := msg.Unpack(b); err != nil {
		return nil, err
	}
	return msg.Answer, nil
}

// ErrInvalidRecord reports a malformed packet or record.
type ErrInvalidRecord struct {
	Message string
}

func (e ErrInvalidRecord) Error() string {
	return "pkdns: invalid record: " + e.Message
}

// FindPubkyTarget scans records for the first `_pubky` SVCB/HTTPS record
// (lowest Priority value wins on ties the first one wins, matching DNS
// SVCB preference ordering where smaller SvcPriority is more preferred,
// except priority 0 is AliasMode and skipped here since it carries no
// target host of its own for our purposes) and returns its target host and
// an optional HTTP_PORT service parameter.
func FindPubkyTarget(records []dns.RR) (host string, port uint16, ok bool) {
	var best dns.SVCB
	haveBest := false

	consider := func(svcb dns.SVCB, owner string) {
		if svcb.Priority == 0 {
			return
		}
		if owner != PubkyRecordName && !hasPubkyLabel(owner) {
			return
		}
		if !haveBest || svcb.Priority < best.Priority {
			best = svcb
			haveBest = true
		}
	}

	for _, rr := range records {
		switch v := rr.(type) {
		case *dns.HTTPS:
			consider(v.SVCB, ownerLabel(v.Hdr.Name))
		case *dns.SVCB:
			consider(*v, ownerLabel(v.Hdr.Name))
		}
	}
	if !haveBest {
		return "", 0, false
	}

	host = best.Target
	for _, kv := range best.Value {
		if local, ok := kv.(*dns.SVCBLocal); ok && local.KeyCode == httpPortParamKey {
			if len(local.Data) == 2 {
				port = uint16(local.Data[0])<<8 | uint16(local.Data[1])
			}
		}
	}
	return host, port, true
}

// httpPortParamKey is the private-use SVCB parameter key this spec reuses
// to advertise a non-default HTTP port for testnet/local deployments
// (spec.md §6.3).
const httpPortParamKey = dns.SVCB_KEY(65280)

func ownerLabel(name string) string {
	i := 0
	for i < len(name) && name[i] != '.' {
		i++
	}
	return name[:i]
}

func hasPubkyLabel(owner string) bool {
	return owner == PubkyRecordName
}

// HTTPPortValue builds the SVCB key/value pair advertising a non-default
// HTTP port.
func HTTPPortValue(port uint16) *dns.SVCBLocal {
	return &dns.SVCBLocal{
		KeyCode: httpPortParamKey,
		Data:    []byte{byte(port >> 8), byte(port)},
	}
}
