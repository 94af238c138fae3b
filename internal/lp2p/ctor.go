package lp2p

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/host/peerstore/pstoreds"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/drand/drand-verify/common/log"
)

const (
	lowWater         = 50
	highWater        = 200
	gracePeriod      = time.Minute
	bootstrapTimeout = 5 * time.Second

	userAgent = "drand-verify-relay/0.1.0"
)

// PubSubTopic returns the pubsub topic name for a chain hash in hex.
func PubSubTopic(chainHash string) string {
	return fmt.Sprintf("/drand/pubsub/v0.0.0/%s", chainHash)
}

// ConstructHost builds a libp2p host with a gossipsub router on top of it.
// The peerstore lives in ds under the /peerstore namespace. Bootstrap peers
// are dialled once; failing to reach one of them is only logged.
func ConstructHost(ds datastore.Batching, priv crypto.PrivKey, listenAddr string,
	bootstrap []ma.Multiaddr, l log.Logger) (host.Host, *pubsub.PubSub, error) {
	ctx := context.Background()

	pstore, err := pstoreds.NewPeerstore(ctx, namespace.Wrap(ds, datastore.NewKey("/peerstore")), pstoreds.DefaultOpts())
	if err != nil {
		return nil, nil, fmt.Errorf("creating peerstore: %w", err)
	}

	cmgr, err := connmgr.NewConnManager(lowWater, highWater, connmgr.WithGracePeriod(gracePeriod))
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(priv),
		libp2p.Peerstore(pstore),
		libp2p.UserAgent(userAgent),
		libp2p.ConnectionManager(cmgr),
	}
	if listenAddr != "" {
		opts = append(opts, libp2p.ListenAddrStrings(listenAddr))
	} else {
		opts = append(opts, libp2p.NoListenAddrs)
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("constructing host: %w", err)
	}

	p, err := pubsub.NewGossipSub(ctx, h, pubsub.WithPeerExchange(true))
	if err != nil {
		_ = h.Close()
		return nil, nil, fmt.Errorf("constructing pubsub: %w", err)
	}

	for _, addr := range bootstrap {
		ai, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			l.Warnw("", "construct_host", "invalid bootstrap address", "addr", addr, "err", err)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
		err = h.Connect(cctx, *ai)
		cancel()
		if err != nil {
			l.Warnw("", "construct_host", "could not bootstrap", "addr", addr, "err", err)
			continue
		}
		h.ConnManager().Protect(ai.ID, "bootstrap")
		l.Infow("", "construct_host", "connected to bootstrap peer", "peer", ai.ID)
	}

	return h, p, nil
}

// LoadOrCreatePrivKey loads the ed25519 identity stored at identityPath, or
// generates one and writes it there when the file does not exist.
func LoadOrCreatePrivKey(identityPath string, l log.Logger) (crypto.PrivKey, error) {
	privB, err := os.ReadFile(identityPath)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(privB)
		if err != nil {
			return nil, fmt.Errorf("decoding identity %s: %w", identityPath, err)
		}
		l.Infow("", "lp2p", "loaded private key", "path", identityPath)
		return priv, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading identity %s: %w", identityPath, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}
	privB, err = crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(identityPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}
	if err := os.WriteFile(identityPath, privB, 0o600); err != nil {
		return nil, fmt.Errorf("writing identity %s: %w", identityPath, err)
	}
	l.Infow("", "lp2p", "generated new private key", "path", identityPath)
	return priv, nil
}

// TempDataDir returns a fresh, uniquely named directory under the system
// temporary directory for relays started without --store.
func TempDataDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "drand-relay-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
