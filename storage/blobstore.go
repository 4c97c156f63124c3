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

// Package storage implements the homeserver's content-addressed object
// store: a namespace of per-user entries, each referencing a
// Blake3-hashed blob, with quota enforcement and directory listing
// (spec.md §4.8).
package storage

import (
	"errors"
	"io"
)

// ErrBlobNotFound is returned by BlobStore.Open when no blob exists for a
// hash.
var ErrBlobNotFound = errors.New("storage: blob not found")

// BlobStore is the content-addressed backend a durable, re-openable byte
// sequence is stored in, referenced only by its hash. The core contract is
// deliberately narrow - spec.md leaves the backend (local files, object
// store) to the implementer - so a production deployment can swap
// FileBlobStore for an S3/GCS-backed one without touching Engine.
type BlobStore interface {
	// Put streams r into the store, returning its Blake3 hash (hex) and
	// length. Writing the same bytes twice is safe: the second call
	// observes the same hash and may discard its own copy.
	Put(r io.Reader) (hash string, length int64, err error)

	// Open returns a reader for the blob addressed by hash, or
	// ErrBlobNotFound.
	Open(hash string) (io.ReadCloser, error)

	// Delete removes the blob addressed by hash. Deleting an absent hash
	// is not an error.
	Delete(hash string) error
}
