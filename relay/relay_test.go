package relay

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestConsumeBeforeProduce covers spec.md §8 invariant 10, ordering one:
// GET arrives first, then POST; the POST's bytes are delivered verbatim.
func TestConsumeBeforeProduce(t *testing.T) {
	r := New(time.Second, DefaultMaxPayloadBytes)

	resultCh := make(chan []byte, 1)
	go func() {
		data, err := r.Consume(context.Background(), "chan-1")
		require.NoError(t, err)
		resultCh <- data
	}()

	time.Sleep(20 * time.Millisecond) // ensure Consume has registered
	require.NoError(t, r.Produce(context.Background(), "chan-1", []byte("hello")))

	select {
	case data := <-resultCh:
		require.Equal(t, "hello", string(data))
	case <-time.After(time.Second):
		t.Fatal("consumer never received data")
	}
}

// TestProduceBeforeConsume covers the reverse ordering of invariant 10.
func TestProduceBeforeConsume(t *testing.T) {
	r := New(time.Second, DefaultMaxPayloadBytes)

	produceErr := make(chan error, 1)
	go func() {
		produceErr <- r.Produce(context.Background(), "chan-2", []byte("world"))
	}()

	time.Sleep(20 * time.Millisecond) // ensure Produce has registered
	data, err := r.Consume(context.Background(), "chan-2")
	require.NoError(t, err)
	require.Equal(t, "world", string(data))

	select {
	case err := <-produceErr:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("producer never unblocked")
	}
}

func TestSecondWaiterIsRejected(t *testing.T) {
	r := New(time.Second, DefaultMaxPayloadBytes)

	go func() { _, _ = r.Consume(context.Background(), "chan-3") }()
	time.Sleep(20 * time.Millisecond)

	_, err := r.Consume(context.Background(), "chan-3")
	require.ErrorIs(t, err, ErrConflict)
}

func TestProduceRejectsOversizedPayload(t *testing.T) {
	r := New(time.Second, 4)
	err := r.Produce(context.Background(), "chan-4", []byte("too big"))
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestConsumeTimesOutWithoutProducer(t *testing.T) {
	r := New(10*time.Millisecond, DefaultMaxPayloadBytes)
	_, err := r.Consume(context.Background(), "chan-5")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestChannelIsDestroyedAfterDelivery(t *testing.T) {
	r := New(time.Second, DefaultMaxPayloadBytes)

	go func() { _, _ = r.Consume(context.Background(), "chan-6") }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Produce(context.Background(), "chan-6", []byte("x")))
	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	_, exists := r.channels["chan-6"]
	r.mu.Unlock()
	require.False(t, exists, "channel should be torn down after a single-shot delivery")
}

func TestHTTPRoundTrip(t *testing.T) {
	r := New(time.Second, DefaultMaxPayloadBytes)
	srv := httptest.NewServer(NewRouter(r))
	defer srv.Close()

	getDone := make(chan *http.Response, 1)
	go func() {
		resp, err := http.Get(srv.URL + "/link/abc")
		require.NoError(t, err)
		getDone <- resp
	}()

	time.Sleep(20 * time.Millisecond)
	resp, err := http.Post(srv.URL+"/link/abc", "application/octet-stream", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp := <-getDone
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(getResp.Body)
	require.NoError(t, err)
	require.Equal(t, "payload", buf.String())
}
