package lp2p

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	bds "github.com/ipfs/go-ds-badger2"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/drand/drand-verify/client"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/internal/wire"
)

// GossipRelayConfig configures a gossip relay node.
type GossipRelayConfig struct {
	// ChainHash is a hash that uniquely identifies the drand chain.
	ChainHash    string
	PeerWith     []string
	Addr         string
	DataDir      string
	IdentityPath string
	// Client supplies the beacons to republish. It is expected to verify
	// them, which a client built by client.New does.
	Client client.Watcher
}

// GossipRelayNode is a gossip relay runtime.
type GossipRelayNode struct {
	l         log.Logger
	bootstrap []ma.Multiaddr
	ds        *bds.Datastore
	priv      crypto.PrivKey
	h         host.Host
	ps        *pubsub.PubSub
	t         *pubsub.Topic
	chainHash []byte
	addrs     []ma.Multiaddr
	done      chan struct{}
}

// NewGossipRelayNode starts a new gossip relay node.
func NewGossipRelayNode(l log.Logger, cfg *GossipRelayConfig) (*GossipRelayNode, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("no client supplying randomness supplied")
	}

	chainHash, err := hex.DecodeString(cfg.ChainHash)
	if err != nil {
		return nil, fmt.Errorf("decoding chain hash: %w", err)
	}

	bootstrap, err := ParseMultiaddrSlice(cfg.PeerWith)
	if err != nil {
		return nil, fmt.Errorf("parsing peer-with: %w", err)
	}

	ds, err := bds.NewDatastore(cfg.DataDir, nil)
	if err != nil {
		return nil, fmt.Errorf("opening datastore: %w", err)
	}

	priv, err := LoadOrCreatePrivKey(cfg.IdentityPath, l)
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("loading p2p key: %w", err)
	}

	h, ps, err := ConstructHost(ds, priv, cfg.Addr, bootstrap, l)
	if err != nil {
		_ = ds.Close()
		return nil, fmt.Errorf("constructing host: %w", err)
	}

	addrs, err := h.Network().InterfaceListenAddresses()
	if err != nil {
		_ = h.Close()
		_ = ds.Close()
		return nil, fmt.Errorf("getting InterfaceListenAddresses: %w", err)
	}

	for _, a := range addrs {
		l.Infow("", "relay_node", "has addr", "addr", fmt.Sprintf("%s/p2p/%s", a, h.ID()))
	}
	l.Infow("Joining PubSubTopic", "chainhash", cfg.ChainHash)
	t, err := ps.Join(PubSubTopic(cfg.ChainHash))
	if err != nil {
		_ = h.Close()
		_ = ds.Close()
		return nil, fmt.Errorf("joining topic: %w", err)
	}

	g := &GossipRelayNode{
		l:         l.Named("relay_node"),
		bootstrap: bootstrap,
		ds:        ds,
		priv:      priv,
		h:         h,
		ps:        ps,
		t:         t,
		chainHash: chainHash,
		addrs:     addrs,
		done:      make(chan struct{}),
	}

	go g.background(cfg.Client)

	return g, nil
}

// Multiaddrs returns the gossipsub multiaddresses of this relay node.
func (g *GossipRelayNode) Multiaddrs() []ma.Multiaddr {
	base := g.h.Addrs()
	b := make([]ma.Multiaddr, 0, len(base))
	for _, a := range base {
		m, err := ma.NewMultiaddr(fmt.Sprintf("%s/p2p/%s", a, g.h.ID()))
		if err != nil {
			g.l.Warnw("", "relay_node", "skipping address", "addr", a, "err", err)
			continue
		}
		b = append(b, m)
	}
	return b
}

// Shutdown stops the relay node and releases its host and datastore.
func (g *GossipRelayNode) Shutdown() {
	close(g.done)
	_ = g.t.Close()
	_ = g.h.Close()
	_ = g.ds.Close()
}

// ParseMultiaddrSlice parses a list of addresses into multiaddrs
func ParseMultiaddrSlice(peers []string) ([]ma.Multiaddr, error) {
	out := make([]ma.Multiaddr, len(peers))
	for i, peer := range peers {
		m, err := ma.NewMultiaddr(peer)
		if err != nil {
			return nil, fmt.Errorf("parsing multiaddr\"%s\": %w", peer, err)
		}
		out[i] = m
	}
	return out, nil
}

func (g *GossipRelayNode) background(w client.Watcher) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-g.done
		cancel()
	}()
	for {
		results := w.Watch(ctx)
	LOOP:
		for {
			select {
			case res, ok := <-results:
				if !ok {
					g.l.Warnw("", "relay_node", "watch channel closed")
					break LOOP
				}

				randB, err := wire.MarshalResult(res, g.chainHash)
				if err != nil {
					g.l.Errorw("", "relay_node", "err marshaling", "err", err)
					continue
				}

				g.l.Debugw("publishing message",
					"relay_node", "publish",
					"round", res.GetRound(),
					"time.Now", time.Now().Unix(),
				)

				if err := g.t.Publish(ctx, randB); err != nil {
					g.l.Errorw("", "relay_node", "err publishing on pubsub", "err", err)
					continue
				}

				g.l.Infow("", "relay_node", "Published randomness on pubsub", "round", res.GetRound())
			case <-g.done:
				return
			}
		}
		select {
		case <-g.done:
			return
		case <-time.After(time.Second):
		}
	}
}
