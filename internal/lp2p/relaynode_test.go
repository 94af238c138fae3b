package lp2p

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drand/drand-verify/client/test/result/mock"
	"github.com/drand/drand-verify/common/testlogger"
	"github.com/drand/drand-verify/drand"
)

type watchFunc func(context.Context) <-chan drand.Result

func (f watchFunc) Watch(ctx context.Context) <-chan drand.Result {
	return f(ctx)
}

func TestWatchRetryOnClose(t *testing.T) {
	results := []mock.Result{
		mock.NewMockResult(1),
		mock.NewMockResult(2),
		mock.NewMockResult(3),
	}
	wg := sync.WaitGroup{}
	wg.Add(len(results))

	// return a channel that writes one result then closes
	var mu sync.Mutex
	watchF := func(context.Context) <-chan drand.Result {
		mu.Lock()
		defer mu.Unlock()
		ch := make(chan drand.Result, 1)
		if len(results) > 0 {
			res := results[0]
			results = results[1:]
			ch <- &res
			wg.Done()
		}
		close(ch)
		return ch
	}

	td := t.TempDir()
	gr, err := NewGossipRelayNode(testlogger.New(t), &GossipRelayConfig{
		ChainHash:    "8990e7a9aaed2ffed73dbd7092123d6f289930540d7651336225dc172e51b2ce",
		Addr:         "/ip4/127.0.0.1/tcp/0",
		DataDir:      td,
		IdentityPath: filepath.Join(td, "identity.key"),
		Client:       watchFunc(watchF),
	})
	require.NoError(t, err)
	defer gr.Shutdown()
	wg.Wait()

	// even though the watch channel closed, it should have been re-opened by
	// the relay multiple times until no results remain.
	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, results)
	require.NotEmpty(t, gr.Multiaddrs())
}

func TestNewGossipRelayNodeErrors(t *testing.T) {
	td := t.TempDir()
	l := testlogger.New(t)
	noop := watchFunc(func(context.Context) <-chan drand.Result { return nil })

	_, err := NewGossipRelayNode(l, &GossipRelayConfig{ChainHash: "00"})
	require.ErrorContains(t, err, "no client")

	_, err = NewGossipRelayNode(l, &GossipRelayConfig{ChainHash: "zz", Client: noop})
	require.ErrorContains(t, err, "chain hash")

	_, err = NewGossipRelayNode(l, &GossipRelayConfig{
		ChainHash: "00",
		PeerWith:  []string{"not a multiaddr"},
		DataDir:   td,
		Client:    noop,
	})
	require.ErrorContains(t, err, "peer-with")
}

func TestLoadOrCreatePrivKey(t *testing.T) {
	l := testlogger.New(t)
	path := filepath.Join(t.TempDir(), "nested", "identity.key")

	priv, err := LoadOrCreatePrivKey(path, l)
	require.NoError(t, err)

	again, err := LoadOrCreatePrivKey(path, l)
	require.NoError(t, err)
	require.True(t, priv.Equals(again))
}

func TestPubSubTopic(t *testing.T) {
	require.Equal(t, "/drand/pubsub/v0.0.0/abcd", PubSubTopic("abcd"))
}

func TestParseMultiaddrSlice(t *testing.T) {
	addrs, err := ParseMultiaddrSlice([]string{"/ip4/127.0.0.1/tcp/4444", "/dns4/example.com/tcp/44544"})
	require.NoError(t, err)
	require.Len(t, addrs, 2)

	_, err = ParseMultiaddrSlice([]string{"/ip4/127.0.0.1/tcp/4444", "nope"})
	require.Error(t, err)
}
