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

package storage

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/pubky-network/pubky-go/internal/applog"
)

var _ BlobStore = &FileBlobStore{}

// FileBlobStore is a local-filesystem BlobStore. Blobs are hashed while
// streaming to a temp file, then renamed into place under a two-level
// fan-out directory (first four hex digits of the hash) to keep any one
// directory from growing unbounded - the local-disk analogue of the
// teacher's large-object handling in database.go, generalized from a
// single users table to arbitrary content.
type FileBlobStore struct {
	root string
}

// NewFileBlobStore roots a FileBlobStore at root, creating it if absent.
func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, err
	}
	return &FileBlobStore{root: root}, nil
}

func (f *FileBlobStore) pathFor(hash string) string {
	if len(hash) < 4 {
		return filepath.Join(f.root, hash)
	}
	return filepath.Join(f.root, hash[:4], hash)
}

func (f *FileBlobStore) Put(r io.Reader) (string, int64, error) {
	tmp, err := os.CreateTemp(f.root, "upload-*")
	if err != nil {
		return "", 0, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once successfully renamed

	hasher := blake3.New()
	n, err := io.Copy(tmp, io.TeeReader(r, hasher))
	closeErr := tmp.Close()
	if err != nil {
		return "", 0, err
	}
	if closeErr != nil {
		return "", 0, closeErr
	}

	hash := hex.EncodeToString(hasher.Sum(nil))
	finalPath := f.pathFor(hash)
	if _, err := os.Stat(finalPath); err == nil {
		// Identical content already stored; the temp copy is redundant.
		return hash, n, nil
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o750); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", 0, err
	}
	return hash, n, nil
}

func (f *FileBlobStore) Open(hash string) (io.ReadCloser, error) {
	file, err := os.Open(f.pathFor(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return file, nil
}

func (f *FileBlobStore) Delete(hash string) error {
	err := os.Remove(f.pathFor(hash))
	if err != nil && !os.IsNotExist(err) {
		applog.Error.Errorf("storage: deleting blob %s: %s", hash, err)
		return err
	}
	return nil
}
