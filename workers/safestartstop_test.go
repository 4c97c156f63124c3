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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandleInvokesPeriodically(t *testing.T) {
	var calls int32
	h := newHandle(func(context.Context) { atomic.AddInt32(&calls, 1) }, 10*time.Millisecond)
	h.Start()
	defer h.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 2 }, time.Second, 5*time.Millisecond)
}

func TestHandleStopWaitsForInFlightCall(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHandle(func(context.Context) {
		close(started)
		<-release
	}, 5*time.Millisecond)
	h.Start()

	<-started
	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Stop returned before the in-flight call finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-done
}

func TestHandleStartAndStopAreIdempotent(t *testing.T) {
	h := newHandle(func(context.Context) {}, time.Hour)
	h.Start()
	h.Start() // no-op, must not deadlock or start a second loop
	h.Stop()
	h.Stop() // no-op
}
