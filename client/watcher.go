package client

import (
	"context"
	"time"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/drand"
)

// infoClient knows the chain info but serves no randomness.
type infoClient struct {
	i *chain.Info
}

func (m infoClient) String() string {
	return "InfoClient"
}

func (m infoClient) Info(_ context.Context) (*chain.Info, error) {
	return m.i, nil
}

func (m infoClient) RoundAt(t time.Time) uint64 {
	r, err := chain.RoundForTime(m.i, t)
	if err != nil {
		return 0
	}
	return r
}

func (m infoClient) Get(_ context.Context, _ uint64) (drand.Result, error) {
	return nil, drand.ErrNotFound
}

func (m infoClient) Watch(_ context.Context) <-chan drand.Result {
	ch := make(chan drand.Result)
	close(ch)
	return ch
}

func (m infoClient) Close() error {
	return nil
}

// watcherClient turns a Watcher into a client that can only watch.
type watcherClient struct {
	infoClient
	watcher Watcher
}

func (c *watcherClient) String() string {
	return "WatcherClient"
}

func (c *watcherClient) Watch(ctx context.Context) <-chan drand.Result {
	return c.watcher.Watch(ctx)
}

func (c *watcherClient) Close() error {
	if cw, ok := c.watcher.(interface{ Close() error }); ok {
		return cw.Close()
	}
	return nil
}
