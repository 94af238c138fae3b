package lp2p

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	clock "github.com/jonboulle/clockwork"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/client"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/lp2p"
	"github.com/drand/drand-verify/internal/wire"
)

// DefaultBufferSize controls how many incoming messages can be in-flight until
// they start to be dropped by the library, and the size of the seen-round set.
const DefaultBufferSize = 100

// Client is a concrete pubsub client implementation
type Client struct {
	cancel func()
	info   *chain.Info
	log    log.Logger
	topic  *pubsub.Topic

	latestMu sync.RWMutex
	latest   *chain.Beacon

	subs struct {
		sync.Mutex
		M map[*int]chan drand.Result
	}
}

// SetLog configures the client log output
func (c *Client) SetLog(l log.Logger) {
	c.log = l
}

// WithPubsub provides an option for integrating pubsub notification
// into a drand client. A nil l falls back to the logger of the client.
func WithPubsub(l log.Logger, ps *pubsub.PubSub, clk clock.Clock, bufferSize int) client.Option {
	return client.WithWatcher(func(cl log.Logger, info *chain.Info) (client.Watcher, error) {
		if l == nil {
			l = cl
		}
		c, err := NewWithPubsub(l, ps, info, clk, bufferSize)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// NewWithPubsub creates a gossip randomness client.
func NewWithPubsub(l log.Logger, ps *pubsub.PubSub, info *chain.Info, clk clock.Clock, bufferSize int) (*Client, error) {
	if info == nil {
		return nil, fmt.Errorf("no chain supplied for joining")
	}
	if l == nil {
		l = log.DefaultLogger()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	seen, err := lru.New(bufferSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cancel: cancel,
		info:   info,
		log:    l,
	}

	chainHash := info.HashString()
	topic := lp2p.PubSubTopic(chainHash)
	if err := ps.RegisterTopicValidator(topic, randomnessValidator(info, seen, l, clk)); err != nil {
		cancel()
		return nil, fmt.Errorf("creating topic: %w", err)
	}
	t, err := ps.Join(topic)
	if err != nil {
		cancel()
		_ = ps.UnregisterTopicValidator(topic)
		return nil, fmt.Errorf("joining pubsub: %w", err)
	}
	s, err := t.Subscribe(pubsub.WithBufferSize(bufferSize))
	if err != nil {
		cancel()
		_ = t.Close()
		_ = ps.UnregisterTopicValidator(topic)
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	c.topic = t
	c.subs.M = make(map[*int]chan drand.Result)

	go func() {
		defer func() {
			s.Cancel()
			_ = t.Close()
			_ = ps.UnregisterTopicValidator(topic)
		}()
		for {
			msg, err := s.Next(ctx)
			if ctx.Err() != nil {
				c.log.Debugw("", "gossip client", "context canceled", "err", ctx.Err())
				c.subs.Lock()
				for _, ch := range c.subs.M {
					close(ch)
				}
				c.subs.M = make(map[*int]chan drand.Result)
				c.subs.Unlock()
				return
			}
			if err != nil {
				c.log.Warnw("", "gossip client", "topic.Next error", "err", err)
				continue
			}

			rand, err := wire.UnmarshalResponse(msg.Data)
			if err != nil {
				c.log.Warnw("", "gossip client", "unmarshal random error", "err", err)
				continue
			}

			b := wire.BeaconFromResponse(rand)
			if !c.advance(b) {
				c.log.Debugw("", "gossip client", "received round older than the latest", "round", b.Round)
				continue
			}

			c.subs.Lock()
			for _, ch := range c.subs.M {
				select {
				case ch <- b:
				default:
					c.log.Warnw("", "gossip client", "randomness notification dropped due to a full channel")
				}
			}
			c.subs.Unlock()
		}
	}()

	return c, nil
}

// advance records b as the latest beacon if it is newer than the current one.
func (c *Client) advance(b *chain.Beacon) bool {
	c.latestMu.Lock()
	defer c.latestMu.Unlock()
	if c.latest != nil && b.Round <= c.latest.Round {
		return false
	}
	c.latest = b
	return true
}

// UnsubFunc is a cancel function for pubsub subscription
type UnsubFunc func()

// Sub subscribes to notifications about new randomness.
// Client instance owns the channel after it is passed to Sub function,
// thus the channel should not be closed by library user
//
// It is recommended to use a buffered channel. If the channel is full,
// notification about randomness will be dropped.
//
// Notification channels will be closed when the client is Closed
func (c *Client) Sub(ch chan drand.Result) UnsubFunc {
	id := new(int)
	c.subs.Lock()
	c.subs.M[id] = ch
	c.subs.Unlock()
	return func() {
		c.subs.Lock()
		if existing, ok := c.subs.M[id]; ok {
			delete(c.subs.M, id)
			close(existing)
		}
		c.subs.Unlock()
	}
}

// Watch implements the drand.Client Watch method.
func (c *Client) Watch(ctx context.Context) <-chan drand.Result {
	innerCh := make(chan drand.Result, DefaultBufferSize)
	outerCh := make(chan drand.Result, DefaultBufferSize)
	end := c.Sub(innerCh)

	go func() {
		defer close(outerCh)
		for {
			select {
			case resp, ok := <-innerCh:
				if !ok {
					return
				}
				select {
				case outerCh <- resp:
				default:
					c.log.Warnw("", "gossip client", "randomness notification dropped due to a full channel")
				}
			case <-ctx.Done():
				c.log.Debugw("", "gossip client", "context canceled", "err", ctx.Err())
				end()
				// drain leftover on innerCh
				for range innerCh {
				}
				return
			}
		}
	}()

	return outerCh
}

// Get returns the latest beacon seen on the topic. Historical rounds are
// not kept, so any other round yields drand.ErrNotFound.
func (c *Client) Get(_ context.Context, round uint64) (drand.Result, error) {
	c.latestMu.RLock()
	defer c.latestMu.RUnlock()
	if c.latest == nil || (round != 0 && round != c.latest.Round) {
		return nil, fmt.Errorf("%w: round %d not seen on gossip", drand.ErrNotFound, round)
	}
	return c.latest, nil
}

// Info returns the parameters of the chain this client is connected to.
func (c *Client) Info(_ context.Context) (*chain.Info, error) {
	return c.info, nil
}

// RoundAt returns the round number current at t.
func (c *Client) RoundAt(t time.Time) uint64 {
	r, err := chain.RoundForTime(c.info, t)
	if err != nil {
		return 0
	}
	return r
}

// Close stops Client, cancels PubSub subscription and closes the topic.
func (c *Client) Close() error {
	c.cancel()
	return nil
}

func (c *Client) String() string {
	return fmt.Sprintf("GossipClient{%s}", c.info.HashString())
}

// NewPubsub constructs a basic libp2p pubsub module for use with the drand
// client. The host uses a throwaway identity and an in-memory peerstore and
// dials every relay in relayAddrs.
func NewPubsub(ctx context.Context, listenAddr string, relayAddrs []string) (*pubsub.PubSub, host.Host, error) {
	if len(relayAddrs) == 0 {
		return nil, nil, errors.New("no relay addresses given")
	}
	bootstrap, err := lp2p.ParseMultiaddrSlice(relayAddrs)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing relay addresses: %w", err)
	}
	priv, _, err := crypto.GenerateEd25519Key(crand.Reader)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ds := dssync.MutexWrap(datastore.NewMapDatastore())
	h, ps, err := lp2p.ConstructHost(ds, priv, listenAddr, bootstrap, log.FromContextOrDefault(ctx))
	if err != nil {
		return nil, nil, err
	}
	return ps, h, nil
}
