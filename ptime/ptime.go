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

// Package ptime defines the microsecond Unix timestamp used across the auth
// token, PKDNS packet, session, and event log wire formats.
package ptime

import (
	"encoding/binary"
	"strconv"
	"time"
)

// Timestamp is microseconds since the Unix epoch.
type Timestamp int64

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMicro())
}

// Time converts back to a time.Time.
func (t Timestamp) Time() time.Time {
	return time.UnixMicro(int64(t))
}

// Bytes encodes t as 8 big-endian bytes.
func (t Timestamp) Bytes() [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t))
	return b
}

// FromBytes decodes 8 big-endian bytes into a Timestamp.
func FromBytes(b []byte) Timestamp {
	return Timestamp(binary.BigEndian.Uint64(b))
}

// String renders the decimal form.
func (t Timestamp) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// Parse parses the decimal form produced by String.
func Parse(s string) (Timestamp, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Timestamp(v), nil
}

// Sub returns t - u as a time.Duration.
func (t Timestamp) Sub(u Timestamp) time.Duration {
	return time.Duration(int64(t)-int64(u)) * time.Microsecond
}

// Add returns t shifted by d.
func (t Timestamp) Add(d time.Duration) Timestamp {
	return t + Timestamp(d/time.Microsecond)
}
