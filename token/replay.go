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

package token

import (
	"bytes"
	"sort"
	"sync"

	"github.com/pubky-network/pubky-go/crypto"
)

// replaySet is a sorted-by-bucket, then by hash, vector of seen
// (time-bucket, token-hash) pairs. Modeled on the original implementation's
// "replay set as a sorted vector" design (see DESIGN.md): binary search for
// membership and insertion, a single drain for GC. No background goroutine
// is needed: GC runs inline, bounded by the same mutex as the lookup, and
// is never held across a suspension point.
type replaySet struct {
	mu      sync.Mutex
	entries []replayEntry
}

type replayEntry struct {
	bucket int64
	hash   crypto.Hash
}

func newReplaySet() *replaySet {
	return &replaySet{}
}

// checkAndRemember reports whether (bucket, hash) is fresh, recording it if
// so. nowBucket is used to garbage collect entries older than two buckets.
func (r *replaySet) checkAndRemember(bucket int64, hash crypto.Hash, nowBucket int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gcLocked(nowBucket)

	i := sort.Search(len(r.entries), func(i int) bool {
		return !entryLess(r.entries[i], replayEntry{bucket: bucket, hash: hash})
	})
	if i < len(r.entries) && r.entries[i].bucket == bucket && r.entries[i].hash == hash {
		return false
	}
	r.entries = append(r.entries, replayEntry{})
	copy(r.entries[i+1:], r.entries[i:])
	r.entries[i] = replayEntry{bucket: bucket, hash: hash}
	return true
}

// gcLocked drops all entries older than two time-intervals in the past,
// must be called with mu held.
func (r *replaySet) gcLocked(nowBucket int64) {
	threshold := nowBucket - 2
	cut := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].bucket >= threshold
	})
	r.entries = r.entries[cut:]
}

func entryLess(a, b replayEntry) bool {
	if a.bucket != b.bucket {
		return a.bucket < b.bucket
	}
	return bytes.Compare(a.hash[:], b.hash[:]) < 0
}

// Len reports the number of tracked entries, for tests and metrics.
func (r *replaySet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
