package pkdns

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"

	"github.com/pubky-network/pubky-go/crypto"
	"github.com/pubky-network/pubky-go/internal/apperr"
	"github.com/pubky-network/pubky-go/ptime"
)

// fakeStore is an in-memory Store with scriptable transient failures, used
// to drive the retry and most-recent-wins behaviors without a real DHT.
type fakeStore struct {
	mu          sync.Mutex
	packets     map[crypto.PublicKey]Packet
	fetchErrs   []error // consumed front-to-back per Fetch call, then nil forever
	publishErrs []error
	fetchCalls  int
	publishCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{packets: map[crypto.PublicKey]Packet{}}
}

func (s *fakeStore) Fetch(ctx context.Context, key crypto.PublicKey) (Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if len(s.fetchErrs) > 0 {
		err := s.fetchErrs[0]
		s.fetchErrs = s.fetchErrs[1:]
		if err != nil {
			return Packet{}, err
		}
	}
	p, ok := s.packets[key]
	if !ok {
		return Packet{}, ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) Publish(ctx context.Context, p Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishCalls++
	if len(s.publishErrs) > 0 {
		err := s.publishErrs[0]
		s.publishErrs = s.publishErrs[1:]
		if err != nil {
			return err
		}
	}
	s.packets[p.PublicKey] = p
	return nil
}

func noopSleep(time.Duration) {}

func httpsRecord(target string) []dns.RR {
	return []dns.RR{
		&dns.HTTPS{SVCB: dns.SVCB{
			Hdr:      dns.RR_Header{Name: PubkyRecordName, Rrtype: dns.TypeHTTPS, Class: dns.ClassINET},
			Priority: 1,
			Target:   dns.Fqdn(target),
		}},
	}
}

// TestResolveHomeserverMostRecentWins is the universal invariant from
// spec.md §8.5: after publishing two packets for the same key with
// ts1 < ts2, resolvers return the packet advertising ts2.
func TestResolveHomeserverMostRecentWins(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	store := newFakeStore()
	client := NewClient(store)
	client.sleep = noopSleep

	older, err := Sign(kp, ptime.Now().Add(-time.Hour), httpsRecord("old.example"))
	require.NoError(t, err)
	require.NoError(t, store.Publish(context.Background(), older))

	newer, err := Sign(kp, ptime.Now(), httpsRecord("new.example"))
	require.NoError(t, err)
	require.NoError(t, store.Publish(context.Background(), newer))

	spec, err := client.ResolveHomeserver(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.NotNil(t, spec)
	require.Equal(t, "new.example.", spec.Host)
}

func TestResolveHomeserverMissingIsNilNotError(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	client := NewClient(newFakeStore())
	spec, err := client.ResolveHomeserver(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.Nil(t, spec)
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	store := newFakeStore()
	transient := apperr.Pkarr("timeout", nil, true)
	store.fetchErrs = []error{transient, transient}
	p, err := Sign(kp, ptime.Now(), httpsRecord("svc.example"))
	require.NoError(t, err)
	require.NoError(t, store.Publish(context.Background(), p))

	client := NewClient(store)
	client.sleep = noopSleep

	spec, err := client.ResolveHomeserver(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.NotNil(t, spec)
	require.Equal(t, 3, store.fetchCalls) // 2 failures + 1 success
}

func TestFetchDoesNotRetryPermanentErrors(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	store := newFakeStore()
	permanent := apperr.Pkarr("malformed record", nil, false)
	store.fetchErrs = []error{permanent}

	client := NewClient(store)
	client.sleep = noopSleep

	_, err = client.ResolveHomeserver(context.Background(), kp.PublicKey())
	require.Error(t, err)
	require.Equal(t, 1, store.fetchCalls)
}

func TestFetchGivesUpAfterMaxRetries(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	store := newFakeStore()
	transient := apperr.Pkarr("timeout", nil, true)
	store.fetchErrs = []error{transient, transient, transient, transient, transient}

	client := NewClient(store)
	client.sleep = noopSleep

	_, err = client.ResolveHomeserver(context.Background(), kp.PublicKey())
	require.Error(t, err)
	require.Equal(t, maxRetries+1, store.fetchCalls)
}

func TestPublishHomeserverSkipsWhenFresh(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	store := newFakeStore()
	p, err := Sign(kp, ptime.Now(), httpsRecord("existing.example"))
	require.NoError(t, err)
	require.NoError(t, store.Publish(context.Background(), p))

	client := NewClient(store)
	client.sleep = noopSleep

	err = client.PublishHomeserver(context.Background(), kp, IfOlderThan(time.Hour), "", 0)
	require.NoError(t, err)
	require.Equal(t, 1, store.publishCalls) // the seed publish only; no republish
}

func TestPublishHomeserverForceAlwaysPublishes(t *testing.T) {
	kp, err := crypto.GenerateKeypair()
	require.NoError(t, err)

	store := newFakeStore()
	p, err := Sign(kp, ptime.Now(), httpsRecord("existing.example"))
	require.NoError(t, err)
	require.NoError(t, store.Publish(context.Background(), p))

	client := NewClient(store)
	client.sleep = noopSleep

	err = client.PublishHomeserver(context.Background(), kp, Force(), "new.example", 8080)
	require.NoError(t, err)
	require.Equal(t, 2, store.publishCalls)

	spec, err := client.ResolveHomeserver(context.Background(), kp.PublicKey())
	require.NoError(t, err)
	require.Equal(t, "new.example.", spec.Host)
	require.Equal(t, uint16(8080), spec.Port)
}

func TestClampRepublishInterval(t *testing.T) {
	require.Equal(t, MinRepublishInterval, ClampRepublishInterval(time.Minute))
	require.Equal(t, time.Hour, ClampRepublishInterval(time.Hour))
}

func TestFindPubkyTargetSkipsAliasMode(t *testing.T) {
	records := []dns.RR{
		&dns.HTTPS{SVCB: dns.SVCB{
			Hdr:      dns.RR_Header{Name: PubkyRecordName, Rrtype: dns.TypeHTTPS, Class: dns.ClassINET},
			Priority: 0, // AliasMode, must be skipped
			Target:   dns.Fqdn("alias.example"),
		}},
		&dns.HTTPS{SVCB: dns.SVCB{
			Hdr:      dns.RR_Header{Name: PubkyRecordName, Rrtype: dns.TypeHTTPS, Class: dns.ClassINET},
			Priority: 2,
			Target:   dns.Fqdn("service.example"),
		}},
	}
	host, _, ok := FindPubkyTarget(records)
	require.True(t, ok)
	require.Equal(t, "service.example.", host)
}
